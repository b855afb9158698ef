package arae

import (
	"log"
	"time"
)

// A Stopwatch measures the duration of a named task.
type Stopwatch struct {
	Name  string
	Start time.Time
}

// StartStopwatch starts timing a task.
func StartStopwatch(name string) Stopwatch {
	return Stopwatch{Name: name, Start: time.Now()}
}

// Elapsed returns the time since the Stopwatch started.
func (s Stopwatch) Elapsed() time.Duration {
	return time.Since(s.Start)
}

// Stop logs the elapsed time, if logger is non-nil, and
// returns it.
func (s Stopwatch) Stop(logger *log.Logger) time.Duration {
	d := s.Elapsed()
	if logger != nil {
		logger.Printf("[INFO] %s took %v", s.Name, d.Round(time.Millisecond))
	}
	return d
}
