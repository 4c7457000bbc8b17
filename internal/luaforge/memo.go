package luaforge

import (
	"os"
	"sync"
)

// Memo caches probe results (PATH lookups, existence checks, registry
// queries, the git version) for the lifetime of one run. The owner creates it
// and hands it to the components that need it.
type Memo struct {
	mu     sync.Mutex
	values map[string]any
}

func NewMemo() *Memo {
	return &Memo{values: make(map[string]any)}
}

func remember[T any](m *Memo, key string, fn func() T) T {
	m.mu.Lock()
	if v, ok := m.values[key]; ok {
		m.mu.Unlock()
		return v.(T)
	}
	m.mu.Unlock()

	v := fn()

	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
	return v
}

// Exists reports whether path exists, checking the filesystem once per path.
func (m *Memo) Exists(path string) bool {
	return remember(m, "exists:"+path, func() bool {
		_, err := os.Stat(path)
		return err == nil
	})
}
