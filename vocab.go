package arae

import (
	"sort"
	"strings"
)

// Special token IDs, which every Vocab reserves.
const (
	PadID = 0
	UnkID = 1
	SosID = 2
	EosID = 3
)

var specialTokens = []string{"<pad>", "<unk>", "<sos>", "<eos>"}

// A Vocab maps tokens to IDs and back.
//
// The first four IDs are always PadID, UnkID, SosID, and
// EosID.
type Vocab struct {
	tokens []string
	ids    map[string]int

	// Embedding optionally stores a pre-trained embedding
	// for each token, indexed by ID.
	Embedding [][]float64
}

// NewVocab creates a Vocab from a list of non-special
// tokens, which are assigned IDs in order.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{ids: map[string]int{}}
	for _, t := range append(append([]string{}, specialTokens...), tokens...) {
		if _, ok := v.ids[t]; ok {
			continue
		}
		v.ids[t] = len(v.tokens)
		v.tokens = append(v.tokens, t)
	}
	return v
}

// BuildVocab creates a Vocab of the most frequent tokens
// in a set of tokenized sentences.
//
// The resulting Vocab has at most maxSize tokens,
// including the special tokens.
// Ties are broken alphabetically so that the result does
// not depend on map ordering.
func BuildVocab(sents [][]string, maxSize int) *Vocab {
	counts := map[string]int{}
	for _, s := range sents {
		for _, t := range s {
			counts[t]++
		}
	}
	var tokens []string
	for t := range counts {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		c1, c2 := counts[tokens[i]], counts[tokens[j]]
		if c1 == c2 {
			return tokens[i] < tokens[j]
		}
		return c1 > c2
	})
	if limit := maxSize - len(specialTokens); len(tokens) > limit {
		if limit < 0 {
			limit = 0
		}
		tokens = tokens[:limit]
	}
	return NewVocab(tokens)
}

// Len returns the number of tokens, including special
// tokens.
func (v *Vocab) Len() int {
	return len(v.tokens)
}

// ID returns the ID of a token, or UnkID.
func (v *Vocab) ID(token string) int {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return UnkID
}

// Token returns the token for an ID.
func (v *Vocab) Token(id int) string {
	return v.tokens[id]
}

// Words returns the non-special tokens.
func (v *Vocab) Words() []string {
	return append([]string{}, v.tokens[len(specialTokens):]...)
}

// Encode converts tokens to IDs.
func (v *Vocab) Encode(tokens []string) []int {
	res := make([]int, len(tokens))
	for i, t := range tokens {
		res[i] = v.ID(t)
	}
	return res
}

// Decode converts IDs to a space-separated sentence.
//
// Decoding stops at the first EosID, and PadID and SosID
// tokens are dropped.
func (v *Vocab) Decode(ids []int) string {
	var words []string
	for _, id := range ids {
		if id == EosID {
			break
		} else if id == PadID || id == SosID {
			continue
		}
		words = append(words, v.Token(id))
	}
	return strings.Join(words, " ")
}
