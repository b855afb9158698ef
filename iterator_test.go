package arae

import (
	"reflect"
	"sort"
	"testing"

	"github.com/pkg/errors"
)

func testDataset(lengths ...int) *Dataset {
	d := &Dataset{}
	for i, l := range lengths {
		sent := make([]int, l)
		for j := range sent {
			sent[j] = 4 + i
		}
		d.Sents = append(d.Sents, sent)
	}
	return d
}

func TestBatchIteratorPass(t *testing.T) {
	for _, dropLast := range []bool{false, true} {
		d := testDataset(1, 2, 3, 4, 5)
		it := NewBatchIterator(d, 2, 1, dropLast, 7)
		expected := 3
		if dropLast {
			expected = 2
		}
		if n := it.NumBatches(); n != expected {
			t.Errorf("dropLast=%v: expected %d batches but got %d", dropLast, expected, n)
		}

		seen := map[int]int{}
		var count int
		for {
			if it.IsEndOfStep() {
				break
			}
			batch, err := it.Next()
			if err != nil {
				t.Fatal(err)
			}
			if err := batch.Validate(); err != nil {
				t.Error(err)
			}
			if dropLast && batch.Size() != 2 {
				t.Errorf("partial batch of size %d", batch.Size())
			}
			for _, row := range batch.Tgt {
				seen[row[0]]++
			}
			count++
		}
		if count != expected {
			t.Errorf("dropLast=%v: expected %d batches but got %d", dropLast, expected, count)
		}
		for tok, n := range seen {
			if n != 1 {
				t.Errorf("sentence %d seen %d times", tok-4, n)
			}
		}
		if !dropLast && len(seen) != 5 {
			t.Errorf("expected 5 sentences but saw %d", len(seen))
		}
	}
}

func TestBatchIteratorEndOfEpoch(t *testing.T) {
	it := NewBatchIterator(testDataset(1, 2, 3, 4), 2, 1, false, 1)
	for pass := 0; pass < 3; pass++ {
		for i := 0; i < 2; i++ {
			if it.TakeEndOfEpoch() {
				t.Fatalf("pass %d batch %d: unexpected end of epoch", pass, i)
			}
			if _, err := it.Next(); err != nil {
				t.Fatal(err)
			}
		}
		if !it.IsEndOfStep() {
			t.Errorf("pass %d: expected end of step", pass)
		}
		if !it.TakeEndOfEpoch() {
			t.Errorf("pass %d: expected end of epoch", pass)
		}
		if it.TakeEndOfEpoch() {
			t.Errorf("pass %d: flag not cleared", pass)
		}
	}
	if c := it.Cursor(); c.Pass != 2 || c.Pos != 2 {
		t.Errorf("unexpected cursor %+v", c)
	}
}

func TestBatchIteratorBuckets(t *testing.T) {
	d := testDataset(5, 1, 4, 2, 3, 6)
	it := NewBatchIterator(d, 3, 2, false, 3)
	var lengths []int
	for !it.IsEndOfStep() {
		batch, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		lengths = append(lengths, batch.MaxLen()-1)
	}
	sort.Ints(lengths)
	if !reflect.DeepEqual(lengths, []int{3, 6}) {
		t.Errorf("expected batches of lengths 1-3 and 4-6 but got max lengths %v", lengths)
	}
}

func TestBatchIteratorRestore(t *testing.T) {
	d := testDataset(1, 2, 3, 4, 5, 6, 7)
	it := NewBatchIterator(d, 2, 2, false, 11)
	for i := 0; i < 5; i++ {
		if _, err := it.Next(); err != nil {
			t.Fatal(err)
		}
	}
	cursor := it.Cursor()
	var expected []*Batch
	for i := 0; i < 6; i++ {
		batch, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		expected = append(expected, batch)
	}

	restored := NewBatchIterator(d, 2, 2, false, 11)
	if err := restored.Restore(cursor); err != nil {
		t.Fatal(err)
	}
	for i, exp := range expected {
		actual, err := restored.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(actual, exp) {
			t.Errorf("batch %d: expected %v but got %v", i, exp.Tgt, actual.Tgt)
		}
	}

	if err := restored.Restore(Cursor{Pass: 0, Pos: 100}); err == nil {
		t.Error("expected error for out-of-range cursor")
	}
}

func TestBatchIteratorEmpty(t *testing.T) {
	it := NewBatchIterator(&Dataset{}, 2, 1, false, 1)
	if _, err := it.Next(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset but got %v", err)
	}
	it = NewBatchIterator(testDataset(3), 2, 1, true, 1)
	if _, err := it.Next(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset but got %v", err)
	}
}
