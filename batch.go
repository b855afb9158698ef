package arae

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
)

// A Batch is an immutable batch of sentences.
//
// Src is each sentence prefixed with SosID, and Tgt is
// each sentence followed by EosID.
// Both are padded with PadID to the longest row.
// Lengths[i] is the unpadded length of Src[i] and Tgt[i].
//
// Ans and AnsLengths are only set for answer-conditioned
// data, in which case every row has an answer.
type Batch struct {
	Src     [][]int
	Tgt     [][]int
	Lengths []int

	Ans        [][]int
	AnsLengths []int
}

// NewBatch creates a Batch from sentences of token IDs.
//
// If answers is non-nil, it must have one entry per
// sentence.
// Answers are padded but not wrapped in special tokens.
func NewBatch(sents, answers [][]int) *Batch {
	if answers != nil && len(answers) != len(sents) {
		panic("answer count mismatch")
	}
	var maxLen int
	for _, s := range sents {
		maxLen = essentials.MaxInt(maxLen, len(s)+1)
	}
	b := &Batch{}
	for _, s := range sents {
		src := make([]int, maxLen)
		tgt := make([]int, maxLen)
		src[0] = SosID
		copy(src[1:], s)
		copy(tgt, s)
		tgt[len(s)] = EosID
		b.Src = append(b.Src, src)
		b.Tgt = append(b.Tgt, tgt)
		b.Lengths = append(b.Lengths, len(s)+1)
	}
	if answers != nil {
		var maxAns int
		for _, a := range answers {
			maxAns = essentials.MaxInt(maxAns, len(a))
		}
		for _, a := range answers {
			padded := make([]int, maxAns)
			copy(padded, a)
			b.Ans = append(b.Ans, padded)
			b.AnsLengths = append(b.AnsLengths, len(a))
		}
	}
	return b
}

// Size returns the number of rows.
func (b *Batch) Size() int {
	return len(b.Src)
}

// MaxLen returns the padded row length.
func (b *Batch) MaxLen() int {
	if len(b.Src) == 0 {
		return 0
	}
	return len(b.Src[0])
}

// Validate checks that every field has one entry per row
// and that the rows are consistent with Lengths.
func (b *Batch) Validate() error {
	n := b.Size()
	if len(b.Tgt) != n || len(b.Lengths) != n {
		return errors.Errorf("batch: field sizes %d, %d, %d differ", n, len(b.Tgt),
			len(b.Lengths))
	}
	if b.Ans != nil && (len(b.Ans) != n || len(b.AnsLengths) != n) {
		return errors.Errorf("batch: answer sizes %d, %d differ from %d", len(b.Ans),
			len(b.AnsLengths), n)
	}
	for i, l := range b.Lengths {
		if l < 1 || l > len(b.Src[i]) || len(b.Src[i]) != len(b.Tgt[i]) {
			return errors.Errorf("batch: bad length %d for row %d", l, i)
		}
		if b.Src[i][0] != SosID || b.Tgt[i][l-1] != EosID {
			return errors.Errorf("batch: row %d lacks special tokens", i)
		}
	}
	return nil
}
