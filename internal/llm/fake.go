package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeGenerator returns deterministic content for offline use and tests.
// Scripted responses are matched by block name; unscripted blocks get a
// stub paragraph. Output is delivered in small chunks to exercise the
// streaming path.
type FakeGenerator struct {
	mu         sync.Mutex
	script     map[string]string
	errs       map[string]error
	ChunkSize  int
	ChunkDelay time.Duration
}

func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{
		script:    make(map[string]string),
		errs:      make(map[string]error),
		ChunkSize: 16,
	}
}

func (f *FakeGenerator) Name() string { return "FakeLLM" }
func (f *FakeGenerator) Close() error { return nil }

// Script pins the output for a block name.
func (f *FakeGenerator) Script(blockName, content string) {
	f.mu.Lock()
	f.script[blockName] = content
	f.mu.Unlock()
}

// Fail makes generation for a block name error out after streaming
// whatever scripted prefix exists.
func (f *FakeGenerator) Fail(blockName string, err error) {
	f.mu.Lock()
	f.errs[blockName] = err
	f.mu.Unlock()
}

func (f *FakeGenerator) Generate(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	f.mu.Lock()
	text, scripted := f.script[req.BlockName]
	failErr := f.errs[req.BlockName]
	f.mu.Unlock()

	if !scripted {
		text = fmt.Sprintf("Generated content for %q.", req.BlockName)
		if len(req.Context) > 0 {
			names := make([]string, 0, len(req.Context))
			for _, dep := range req.Context {
				names = append(names, dep.Name)
			}
			text += " Based on: " + strings.Join(names, ", ") + "."
		}
	}

	size := f.ChunkSize
	if size <= 0 {
		size = 16
	}

	var sb strings.Builder
	for len(text) > 0 {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		default:
		}
		if f.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return sb.String(), ctx.Err()
			case <-time.After(f.ChunkDelay):
			}
		}
		n := size
		if n > len(text) {
			n = len(text)
		}
		chunk := text[:n]
		text = text[n:]
		sb.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return sb.String(), err
			}
		}
	}

	if failErr != nil {
		return sb.String(), failErr
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
