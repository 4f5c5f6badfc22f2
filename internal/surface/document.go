package surface

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
)

// Document owns the set of surfaces and tells waiters when one is inserted.
type Document struct {
	mu       sync.Mutex
	surfaces map[string]*Surface
	waiters  map[string][]chan *Surface
}

func NewDocument() *Document {
	return &Document{
		surfaces: make(map[string]*Surface),
		waiters:  make(map[string][]chan *Surface),
	}
}

// Insert adds a surface and wakes everyone waiting for its id.
func (d *Document) Insert(s *Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.surfaces[s.ID()]; ok {
		return errors.AlreadyExistsf("surface %q", s.ID())
	}
	d.surfaces[s.ID()] = s

	for _, ch := range d.waiters[s.ID()] {
		ch <- s // buffered, never blocks
	}
	delete(d.waiters, s.ID())
	return nil
}

// Create inserts a new empty surface with the given id.
func (d *Document) Create(id string) (*Surface, error) {
	s := New(id)
	if err := d.Insert(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Remove drops a surface. Renderers already attached keep drawing to it.
func (d *Document) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.surfaces, id)
}

func (d *Document) Lookup(id string) (*Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.surfaces[id]
	return s, ok
}

// IDs returns the surface ids in sorted order.
func (d *Document) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.surfaces))
	for id := range d.surfaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WaitFor returns the surface with the given id, blocking until it is inserted
// or ctx is done.
func (d *Document) WaitFor(ctx context.Context, id string) (*Surface, error) {
	d.mu.Lock()
	if s, ok := d.surfaces[id]; ok {
		d.mu.Unlock()
		return s, nil
	}
	ch := make(chan *Surface, 1)
	d.waiters[id] = append(d.waiters[id], ch)
	d.mu.Unlock()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		d.dropWaiter(id, ch)
		return nil, errors.Annotatef(ctx.Err(), "waiting for surface %q", id)
	}
}

func (d *Document) dropWaiter(id string, ch chan *Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.waiters[id]
	for i, c := range list {
		if c == ch {
			d.waiters[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(d.waiters[id]) == 0 {
		delete(d.waiters, id)
	}
}
