package tracker

import "sync"

// Host is the rendering context the tracker runs in. Location reports the
// current page path; ok is false outside a client context (for instance
// during server-side rendering), where tracking is a silent no-op.
type Host interface {
	Location() (path string, ok bool)
}

// Page is a client context whose current path changes on navigation
type Page struct {
	mu   sync.RWMutex
	path string
}

// NewPage creates a client context positioned at path
func NewPage(path string) *Page {
	return &Page{path: path}
}

// Navigate moves the page to path
func (p *Page) Navigate(path string) {
	p.mu.Lock()
	p.path = path
	p.mu.Unlock()
}

func (p *Page) Location() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path, true
}

// Headless is a context without a client: no storage, no page path
type Headless struct{}

func (Headless) Location() (string, bool) {
	return "", false
}
