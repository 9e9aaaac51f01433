package llm

import (
	"context"
	"errors"

	"blockflow/internal/block"
)

var ErrEmptyCompletion = errors.New("llm: model returned no content")

// Dependency is one satisfied upstream block included as generation
// context.
type Dependency struct {
	Name    string
	Content string
}

// Request carries everything the model needs to produce one block's
// content.
type Request struct {
	BlockName   string
	Handler     string
	Prompt      string
	Answers     map[string]string
	Context     []Dependency
	Constraints block.Constraints
}

// ChunkFunc receives each streamed fragment in order. Returning an error
// aborts the stream.
type ChunkFunc func(chunk string) error

// Generator is the opaque async AI call. Implementations stream fragments
// through onChunk and return the full text; the concatenation of delivered
// chunks always equals the returned value. On error the partial text
// streamed so far is returned alongside it.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request, onChunk ChunkFunc) (string, error)
	Close() error
}
