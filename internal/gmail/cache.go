package gmail

import (
	"strings"
	"sync"
)

// LabelCache maps label names to labels with case-insensitive keys. It is
// owned by the client that built it; concurrent admission-limited calls
// serialize through the mutex so the uniqueness invariant holds.
type LabelCache struct {
	mu     sync.Mutex
	byName map[string]Label
}

// NewLabelCache returns an empty cache.
func NewLabelCache() *LabelCache {
	return &LabelCache{byName: map[string]Label{}}
}

// Put stores a label under its lowercased name. The last writer wins, which
// matches Gmail's own behavior of treating differently cased names as one.
func (c *LabelCache) Put(label Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[strings.ToLower(label.Name)] = label
}

// Get looks a label up by name, case-insensitively.
func (c *LabelCache) Get(name string) (Label, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	label, ok := c.byName[strings.ToLower(name)]
	return label, ok
}

// Replace swaps the entire cache contents for the given labels.
func (c *LabelCache) Replace(labels []Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName = make(map[string]Label, len(labels))
	for _, label := range labels {
		c.byName[strings.ToLower(label.Name)] = label
	}
}

// Len reports how many distinct names are cached.
func (c *LabelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byName)
}
