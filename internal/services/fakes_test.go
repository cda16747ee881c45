package services

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/markdave123-py/docchat/internal/core"
)

type fakeEmbedder struct {
	err error
}

// EmbedTexts maps a text to (1, 0) when it mentions "paris", else (0, 1).
func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "paris") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(context.Context, []byte) (*core.ExtractedText, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.ExtractedText{Text: f.text, PageCount: 1}, nil
}

// scriptedLLM returns reply and streams it word by word. It records the
// turns of the last call.
type scriptedLLM struct {
	mu        sync.Mutex
	reply     string
	err       error
	streamErr error
	lastTurns []core.ChatTurn
}

func (s *scriptedLLM) record(turns []core.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTurns = append([]core.ChatTurn(nil), turns...)
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, turns []core.ChatTurn, _ int) (string, error) {
	s.record(turns)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *scriptedLLM) Stream(_ context.Context, _ string, turns []core.ChatTurn, _ int) iter.Seq2[string, error] {
	s.record(turns)
	return func(yield func(string, error) bool) {
		words := strings.SplitAfter(s.reply, " ")
		for i, w := range words {
			if s.streamErr != nil && i == 1 {
				yield("", s.streamErr)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

type memObjects struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newMemObjects() *memObjects { return &memObjects{files: map[string][]byte{}} }

func (m *memObjects) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files["mem://"+key] = data
	return "mem://" + key, nil
}

func (m *memObjects) DeleteFile(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
	m.deleted = append(m.deleted, location)
	return nil
}

func (m *memObjects) GetFile(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[location]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
