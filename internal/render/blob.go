package render

import (
	"fmt"
	"sync"
)

// blob is a frame wrapped as a typed resource.
type blob struct {
	data        []byte
	contentType string
	release     func()
}

// blobTable hands out locally-resolvable "blob:" references to in-flight frames.
// Every reference must be revoked exactly once, which also releases the frame buffer.
type blobTable struct {
	prefix string

	mu      sync.Mutex
	next    uint64
	entries map[string]blob
}

func newBlobTable(owner string) *blobTable {
	return &blobTable{
		prefix:  "blob:framewall/" + owner + "/",
		entries: make(map[string]blob),
	}
}

func (t *blobTable) create(data []byte, contentType string, release func()) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	url := fmt.Sprintf("%s%d", t.prefix, t.next)
	t.entries[url] = blob{data: data, contentType: contentType, release: release}
	return url
}

func (t *blobTable) resolve(url string) (blob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.entries[url]
	return b, ok
}

// revoke drops the reference. It reports false if url was unknown or already revoked.
func (t *blobTable) revoke(url string) bool {
	t.mu.Lock()
	b, ok := t.entries[url]
	delete(t.entries, url)
	t.mu.Unlock()

	if !ok {
		return false
	}
	if b.release != nil {
		b.release()
	}
	return true
}

func (t *blobTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
