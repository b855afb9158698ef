package results

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// A Sink consumes records as they are produced.
type Sink interface {
	Write(r *Record) error
	Close() error
}

// LineSink writes a human-readable summary of each record
// to a logger.
//
// Scalars are printed on a single line, text entries are
// printed one line at a time, and embeddings are only
// summarized.
type LineSink struct {
	Logger *log.Logger
}

// Write logs the record.
func (l *LineSink) Write(r *Record) error {
	var scalars []string
	for _, e := range r.Entries {
		if e.Value.Kind == Scalar {
			scalars = append(scalars, fmt.Sprintf("%s=%.4f", e.Name, e.Value.Scalar))
		}
	}
	if len(scalars) > 0 {
		l.Logger.Printf("[INFO] step %d %s: %s", r.Step, r.Phase,
			strings.Join(scalars, " "))
	}
	for _, e := range r.Entries {
		switch e.Value.Kind {
		case Text:
			for _, line := range e.Value.Lines {
				l.Logger.Printf("[INFO] step %d %s: %s", r.Step, r.Key(e.Name), line)
			}
		case Embedding:
			l.Logger.Printf("[INFO] step %d %s: %d vectors", r.Step, r.Key(e.Name),
				len(e.Value.Vectors))
		}
	}
	return nil
}

// Close does nothing.
func (l *LineSink) Close() error {
	return nil
}

// A JSONLSink writes each record as a line of JSON.
type JSONLSink struct {
	f   *os.File
	enc *json.Encoder
}

// NewJSONLSink creates a sink which appends to the file
// at path, creating it if necessary.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open results file")
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Write encodes the record.
func (j *JSONLSink) Write(r *Record) error {
	return errors.Wrap(j.enc.Encode(r), "write results file")
}

// Close closes the underlying file.
func (j *JSONLSink) Close() error {
	return j.f.Close()
}

// An EmbeddingSink exports embedding entries as pairs of
// TSV files understood by the TensorBoard projector.
//
// For an entry "code" of phase "Generated" at step 10,
// the files are Generated_code_10_vectors.tsv and
// Generated_code_10_labels.tsv inside Dir.
type EmbeddingSink struct {
	Dir string
}

// Write exports the record's embeddings, if it has any.
func (e *EmbeddingSink) Write(r *Record) error {
	for _, entry := range r.Entries {
		if entry.Value.Kind != Embedding {
			continue
		}
		prefix := filepath.Join(e.Dir, fmt.Sprintf("%s_%s_%d",
			sanitizeName(r.Phase), sanitizeName(entry.Name), r.Step))
		if err := writeEmbedding(prefix, entry.Value); err != nil {
			return errors.Wrapf(err, "export %s", r.Key(entry.Name))
		}
	}
	return nil
}

// Close does nothing.
func (e *EmbeddingSink) Close() error {
	return nil
}

func writeEmbedding(prefix string, v Value) error {
	var vecLines, labelLines strings.Builder
	for i, vec := range v.Vectors {
		for j, x := range vec {
			if j > 0 {
				vecLines.WriteByte('\t')
			}
			fmt.Fprintf(&vecLines, "%g", x)
		}
		vecLines.WriteByte('\n')
		label := strings.NewReplacer("\t", " ", "\n", " ").Replace(v.Labels[i])
		labelLines.WriteString(label)
		labelLines.WriteByte('\n')
	}
	if err := os.WriteFile(prefix+"_vectors.tsv", []byte(vecLines.String()), 0644); err != nil {
		return err
	}
	return os.WriteFile(prefix+"_labels.tsv", []byte(labelLines.String()), 0644)
}

func sanitizeName(name string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(name)
}

// A Writer stamps records with a run ID, appends them to
// a Log, and fans them out to sinks.
type Writer struct {
	RunID string
	Log   *Log
	Sinks []Sink
}

// NewWriter creates a Writer with a fresh Log.
func NewWriter(runID string, sinks ...Sink) *Writer {
	return &Writer{RunID: runID, Log: NewLog(), Sinks: sinks}
}

// Add records r.
//
// Every sink sees the record even if an earlier sink
// fails; the first failure is returned.
func (w *Writer) Add(r *Record) error {
	r.RunID = w.RunID
	w.Log.Append(r)
	var firstErr error
	for _, s := range w.Sinks {
		if err := s.Write(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes the Log and every sink.
func (w *Writer) Close() error {
	w.Log.Close()
	var firstErr error
	for _, s := range w.Sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
