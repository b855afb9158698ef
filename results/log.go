package results

import (
	"context"
	"sync"
)

// A Log is an append-only list of records which may be
// read while it is being written.
//
// Appending is done by a single writer (the training
// loop), while any number of readers may follow the Log
// from other goroutines.
type Log struct {
	lock     sync.Mutex
	records  []*Record
	done     bool
	nextWait chan struct{}
}

// NewLog creates an empty, open Log.
func NewLog() *Log {
	return &Log{nextWait: make(chan struct{})}
}

// Append adds a record to the end of the Log and wakes
// up any waiting readers.
//
// It is invalid to Append after Close.
func (l *Log) Append(r *Record) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.done {
		panic("append to closed log")
	}
	l.records = append(l.records, r)
	close(l.nextWait)
	l.nextWait = make(chan struct{})
}

// Close marks the Log as complete.
// Readers waiting for more records are released.
func (l *Log) Close() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.done {
		l.done = true
		close(l.nextWait)
	}
}

// Len returns the number of records written so far.
func (l *Log) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.records)
}

// Read generates a channel that is sent a range of
// records from the Log.
//
// If end is -1, the Log is followed until it is closed.
// Records written after Read was called are sent as they
// arrive.
// Out of bounds parts of the range are ignored once the
// Log is closed.
//
// The channel is closed early if ctx is done.
func (l *Log) Read(ctx context.Context, start, end int) <-chan *Record {
	if start < 0 {
		panic("negative start index")
	} else if end < start && end != -1 {
		panic("invalid end index")
	}

	res := make(chan *Record, 1)
	go func() {
		defer close(res)
		for i := start; i < end || end == -1; i++ {
			l.lock.Lock()
			for i >= len(l.records) {
				if l.done {
					l.lock.Unlock()
					return
				}
				waiter := l.nextWait
				l.lock.Unlock()
				select {
				case <-waiter:
				case <-ctx.Done():
					return
				}
				l.lock.Lock()
			}
			item := l.records[i]
			l.lock.Unlock()
			select {
			case res <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return res
}

// ReadPhase is like Read, but only sends the records for
// the given phase.
// The range refers to indices in the full Log.
func (l *Log) ReadPhase(ctx context.Context, phase string, start, end int) <-chan *Record {
	res := make(chan *Record, 1)
	go func() {
		defer close(res)
		for r := range l.Read(ctx, start, end) {
			if r.Phase != phase {
				continue
			}
			select {
			case res <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return res
}

// Series returns every value of a scalar entry that has
// been logged for a phase so far, in order.
func (l *Log) Series(phase, name string) []float64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	var res []float64
	for _, r := range l.records {
		if r.Phase != phase {
			continue
		}
		if x, ok := r.Scalar(name); ok {
			res = append(res, x)
		}
	}
	return res
}
