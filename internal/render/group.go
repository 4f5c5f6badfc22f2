package render

import (
	"context"
	"sync"

	"github.com/andresmejia3/framewall/internal/types"
)

// Group runs one Renderer per surface binding.
type Group struct {
	renderers []*Renderer
}

func NewGroup(renderers ...*Renderer) *Group {
	return &Group{renderers: renderers}
}

func (g *Group) Renderers() []*Renderer {
	return g.renderers
}

// States reports the current connection state of every renderer, keyed by surface.
func (g *Group) States() map[string]types.ConnState {
	out := make(map[string]types.ConnState, len(g.renderers))
	for _, r := range g.renderers {
		out[r.Surface()] = r.State()
	}
	return out
}

// groupResult wraps the output of one renderer for the aggregator
type groupResult struct {
	Surface string
	Stats   Stats
	Err     error
}

// Run starts every renderer and blocks until all of them have returned.
// Renderers whose surface never appeared before ctx ended are reported with zero stats.
func (g *Group) Run(ctx context.Context) map[string]Stats {
	results := make(chan groupResult, len(g.renderers))
	var wg sync.WaitGroup

	for _, r := range g.renderers {
		wg.Add(1)
		go func(r *Renderer) {
			defer wg.Done()
			st, err := r.Run(ctx)
			results <- groupResult{Surface: r.Surface(), Stats: st, Err: err}
		}(r)
	}

	wg.Wait()
	close(results)

	out := make(map[string]Stats, len(g.renderers))
	for res := range results {
		if res.Err != nil {
			log.Infof("%s never attached: %v", res.Surface, res.Err)
		}
		out[res.Surface] = res.Stats
	}
	return out
}
