package arae

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// An Iterator produces batches in passes over a dataset.
type Iterator interface {
	// Next returns the next batch, starting a new pass if
	// the current one is exhausted.
	Next() (*Batch, error)

	// IsEndOfStep reports whether the current pass has
	// been exhausted, i.e. whether the next call to Next
	// will start a new pass.
	IsEndOfStep() bool

	// TakeEndOfEpoch reports whether a pass has been
	// exhausted since the last call, and clears the flag.
	TakeEndOfEpoch() bool

	// Cursor returns the iterator's position.
	Cursor() Cursor

	// Restore moves the iterator to a saved position.
	Restore(c Cursor) error
}

// A Cursor is the position of a BatchIterator.
type Cursor struct {
	Pass       int
	Pos        int
	EndOfEpoch bool
}

// A BatchIterator iterates over a Dataset in bucketed,
// shuffled batches.
//
// Every pass shuffles the sentences, splits them into
// buckets of BatchSize*BucketSize sentences, sorts each
// bucket by length, cuts the buckets into batches, and
// then shuffles the batches.
// Grouping sentences of similar length keeps padding
// small.
//
// The order of a pass only depends on the seed and the
// pass number, so a Cursor identifies the upcoming
// batches exactly.
type BatchIterator struct {
	Data       *Dataset
	BatchSize  int
	BucketSize int
	DropLast   bool
	Seed       int64

	cursor Cursor
	order  [][]int
}

// NewBatchIterator creates a BatchIterator at the start
// of the first pass.
func NewBatchIterator(d *Dataset, batchSize, bucketSize int, dropLast bool,
	seed int64) *BatchIterator {
	if batchSize <= 0 || bucketSize <= 0 {
		panic("batch and bucket sizes must be positive")
	}
	return &BatchIterator{
		Data:       d,
		BatchSize:  batchSize,
		BucketSize: bucketSize,
		DropLast:   dropLast,
		Seed:       seed,
	}
}

// NumBatches returns the number of batches in a pass.
func (b *BatchIterator) NumBatches() int {
	if b.order != nil {
		return len(b.order)
	}
	return len(b.plan(b.cursor.Pass))
}

// Next returns the next batch.
func (b *BatchIterator) Next() (*Batch, error) {
	if b.order != nil && b.cursor.Pos >= len(b.order) {
		b.cursor.Pass++
		b.cursor.Pos = 0
		b.order = nil
	}
	if b.order == nil {
		b.order = b.plan(b.cursor.Pass)
	}
	if len(b.order) == 0 {
		b.order = nil
		return nil, ErrEmptyDataset
	}
	batch := b.Data.Batch(b.order[b.cursor.Pos])
	b.cursor.Pos++
	if b.cursor.Pos == len(b.order) {
		b.cursor.EndOfEpoch = true
	}
	return batch, nil
}

// IsEndOfStep reports whether the current pass is
// exhausted.
func (b *BatchIterator) IsEndOfStep() bool {
	return b.order != nil && b.cursor.Pos >= len(b.order)
}

// TakeEndOfEpoch returns and clears the end-of-epoch
// flag.
func (b *BatchIterator) TakeEndOfEpoch() bool {
	res := b.cursor.EndOfEpoch
	b.cursor.EndOfEpoch = false
	return res
}

// Cursor returns the current position.
func (b *BatchIterator) Cursor() Cursor {
	return b.cursor
}

// Restore moves to a position returned by Cursor.
func (b *BatchIterator) Restore(c Cursor) error {
	if c.Pass < 0 || c.Pos < 0 {
		return errors.Errorf("restore iterator: invalid cursor %+v", c)
	}
	order := b.plan(c.Pass)
	if c.Pos > len(order) {
		return errors.Errorf("restore iterator: position %d past %d batches", c.Pos,
			len(order))
	}
	b.cursor = c
	b.order = order
	return nil
}

func (b *BatchIterator) plan(pass int) [][]int {
	rng := rand.New(rand.NewSource(b.Seed*1000003 + int64(pass)))
	indices := rng.Perm(b.Data.Len())

	var batches [][]int
	bucketSize := b.BatchSize * b.BucketSize
	for start := 0; start < len(indices); start += bucketSize {
		end := start + bucketSize
		if end > len(indices) {
			end = len(indices)
		}
		bucket := indices[start:end]
		sort.SliceStable(bucket, func(i, j int) bool {
			return len(b.Data.Sents[bucket[i]]) < len(b.Data.Sents[bucket[j]])
		})
		for i := 0; i < len(bucket); i += b.BatchSize {
			j := i + b.BatchSize
			if j > len(bucket) {
				if b.DropLast {
					break
				}
				j = len(bucket)
			}
			batches = append(batches, append([]int{}, bucket[i:j]...))
		}
	}
	rng.Shuffle(len(batches), func(i, j int) {
		batches[i], batches[j] = batches[j], batches[i]
	})
	return batches
}
