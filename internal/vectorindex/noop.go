package vectorindex

import "context"

// Noop discards all writes and returns no hits. cmd/server does not use it:
// a disabled vector backend there yields a nil adapter instead, and the chat
// pipeline then degrades to relational recall only.
type Noop struct{}

func (Noop) Upsert(context.Context, string, []float32, map[string]any) error { return nil }
func (Noop) Search(context.Context, []float32, int, map[string]any) ([]Hit, error) {
	return nil, nil
}
func (Noop) Delete(context.Context, string) error { return nil }
func (Noop) Close() error                         { return nil }

var _ Index = Noop{}
