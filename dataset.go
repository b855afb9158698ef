package arae

import (
	"bufio"
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// A Sentence is a tokenized line of a data file.
//
// Lines of the form "sentence<TAB>answer" also carry an
// answer, used for answer-conditioned training.
type Sentence struct {
	Tokens []string
	Answer []string
}

// LoadSentences reads a data file with one sentence per
// line.
// Tokens are separated by whitespace, and blank lines are
// skipped.
func LoadSentences(path string) ([]Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load sentences", err)
	}
	defer f.Close()

	var res []Sentence
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		var s Sentence
		if idx := strings.IndexByte(line, '\t'); idx >= 0 {
			s.Answer = strings.Fields(line[idx+1:])
			line = line[:idx]
		}
		s.Tokens = strings.Fields(line)
		if len(s.Tokens) > 0 {
			res = append(res, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("load sentences", err)
	}
	return res, nil
}

// TokenLists extracts the tokens of every sentence.
func TokenLists(sents []Sentence) [][]string {
	res := make([][]string, len(sents))
	for i, s := range sents {
		res[i] = s.Tokens
	}
	return res
}

// A Dataset stores encoded sentences.
//
// Answers is nil unless every sentence had an answer.
type Dataset struct {
	Sents   [][]int
	Answers [][]int
}

// NewDataset encodes the sentences with between minLen
// and maxLen tokens, dropping the rest.
func NewDataset(v *Vocab, sents []Sentence, minLen, maxLen int) *Dataset {
	d := &Dataset{}
	hasAnswers := len(sents) > 0
	for _, s := range sents {
		if len(s.Answer) == 0 {
			hasAnswers = false
		}
	}
	for _, s := range sents {
		if len(s.Tokens) < minLen || len(s.Tokens) > maxLen {
			continue
		}
		d.Sents = append(d.Sents, v.Encode(s.Tokens))
		if hasAnswers {
			d.Answers = append(d.Answers, v.Encode(s.Answer))
		}
	}
	return d
}

// Len returns the number of sentences.
func (d *Dataset) Len() int {
	return len(d.Sents)
}

// Batch creates a Batch from the sentences at the given
// indices.
func (d *Dataset) Batch(indices []int) *Batch {
	sents := make([][]int, len(indices))
	var answers [][]int
	if d.Answers != nil {
		answers = make([][]int, len(indices))
	}
	for i, idx := range indices {
		sents[i] = d.Sents[idx]
		if answers != nil {
			answers[i] = d.Answers[idx]
		}
	}
	return NewBatch(sents, answers)
}
