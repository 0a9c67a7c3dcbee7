package index

import "sync"

// Holder owns the reference to the live index. The lock guards only the pointer:
// builds happen outside it and readers search the Index they loaded without holding it.
type Holder struct {
	mu      sync.RWMutex
	current *Index
}

func NewHolder() *Holder {
	return &Holder{}
}

// Load returns the live index, or nil when none is loaded.
func (h *Holder) Load() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap installs next as the live index and returns the one it replaced.
func (h *Holder) Swap(next *Index) *Index {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

// Clear drops the live index and returns it.
func (h *Holder) Clear() *Index {
	return h.Swap(nil)
}
