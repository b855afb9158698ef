// Package ngram wraps the KenLM command-line tools to
// score generated text with an n-gram language model.
package ngram

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const perplexityPrefix = "Perplexity including OOVs:"

// A Toolkit runs the KenLM lmplz and query binaries.
type Toolkit struct {
	// LMPlz and Query are paths to the binaries.
	// If empty, they are looked up in $PATH.
	LMPlz string
	Query string

	// Order is the n-gram order of trained models.
	Order int

	// Timeout, if non-zero, bounds each command.
	Timeout time.Duration
}

// ReversePerplexity trains an n-gram model on generated
// sentences and measures its perplexity on held-out
// sentences.
//
// Every vocabulary word is added to the training text as
// its own line so that no held-out word is entirely
// unseen.
// Training files are written next to dest, which is a
// path without an extension: dest.txt holds the training
// text, dest.arpa the model, and dest.eval.txt the
// held-out sentences.
func (t *Toolkit) ReversePerplexity(ctx context.Context, vocab, generated,
	heldOut []string, dest string) (float64, error) {
	if len(heldOut) == 0 {
		return 0, errors.New("reverse perplexity: no held-out sentences")
	}

	var train bytes.Buffer
	for _, w := range vocab {
		train.WriteString(w)
		train.WriteByte('\n')
	}
	for _, s := range generated {
		if s = strings.TrimSpace(s); s != "" {
			train.WriteString(s)
			train.WriteByte('\n')
		}
	}
	if err := os.WriteFile(dest+".txt", train.Bytes(), 0644); err != nil {
		return 0, errors.Wrap(err, "reverse perplexity")
	}
	evalText := strings.Join(heldOut, "\n") + "\n"
	if err := os.WriteFile(dest+".eval.txt", []byte(evalText), 0644); err != nil {
		return 0, errors.Wrap(err, "reverse perplexity")
	}

	if err := t.Train(ctx, dest+".txt", dest+".arpa"); err != nil {
		return 0, err
	}
	return t.Perplexity(ctx, dest+".arpa", dest+".eval.txt")
}

// Train builds an ARPA model from a text file.
func (t *Toolkit) Train(ctx context.Context, textPath, arpaPath string) error {
	in, err := os.Open(textPath)
	if err != nil {
		return errors.Wrap(err, "train n-gram model")
	}
	defer in.Close()
	out, err := os.Create(arpaPath)
	if err != nil {
		return errors.Wrap(err, "train n-gram model")
	}
	defer out.Close()

	ctx, cancel := t.context(ctx)
	defer cancel()
	cmd := exec.CommandContext(ctx, binary(t.LMPlz, "lmplz"),
		"-o", strconv.Itoa(t.Order), "--discount_fallback")
	cmd.Stdin = in
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "train n-gram model: %s", lastLine(stderr.String()))
	}
	return nil
}

// Perplexity evaluates a model on a text file.
func (t *Toolkit) Perplexity(ctx context.Context, arpaPath, textPath string) (float64, error) {
	in, err := os.Open(textPath)
	if err != nil {
		return 0, errors.Wrap(err, "query n-gram model")
	}
	defer in.Close()

	ctx, cancel := t.context(ctx)
	defer cancel()
	cmd := exec.CommandContext(ctx, binary(t.Query, "query"), "-v", "summary", arpaPath)
	cmd.Stdin = in
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, errors.Wrapf(err, "query n-gram model: %s", lastLine(stderr.String()))
	}
	return ParsePerplexity(out)
}

// ParsePerplexity extracts the perplexity (including
// OOVs) from the summary printed by KenLM's query.
func ParsePerplexity(output []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, perplexityPrefix) {
			continue
		}
		field := strings.TrimSpace(strings.TrimPrefix(line, perplexityPrefix))
		ppl, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse perplexity")
		}
		return ppl, nil
	}
	return 0, errors.New("parse perplexity: no perplexity in output")
}

func (t *Toolkit) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.Timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.Timeout)
}

func binary(path, name string) string {
	if path == "" {
		return name
	}
	return path
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
