// Package tokens counts model tokens for budget-aware prompt assembly.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
)

// Encoding is the reference BPE used for budgeting. It is the encoding of the
// GPT-4 family and text-embedding-3-*; other chat models are close enough.
const Encoding = "cl100k_base"

// Counter returns how many tokens a string consumes.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(string) int

func (f CounterFunc) Count(text string) int { return f(text) }

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// encoder loads the shared encoder on first use. The encoder is never
// mutated afterwards, so it is safe for concurrent reads.
func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(Encoding)
		if encErr != nil {
			logrus.WithError(encErr).Warn("tiktoken encoding unavailable, falling back to character estimate")
		}
	})
	return enc, encErr
}

// Tiktoken counts with the cl100k_base encoding.
type Tiktoken struct{}

// NewTiktoken returns the process-wide tiktoken counter.
func NewTiktoken() Tiktoken { return Tiktoken{} }

func (Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	e, err := encoder()
	if err != nil {
		return Approx(text)
	}
	return len(e.Encode(text, nil, nil))
}

// Approx is a cheap token estimator (~4 chars ≈ 1 token).
func Approx(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

var _ Counter = Tiktoken{}
