// Package cmap is a typed wrapper over sync.Map.
package cmap

import "sync"

type Map[K comparable, V any] struct {
	m sync.Map
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, exists := m.m.Load(k)
	if !exists {
		var zero V
		return zero, false
	}

	return v.(V), true
}

func (m *Map[K, V]) Set(k K, v V) {
	m.m.Store(k, v)
}

// Update replaces the value under k with f applied to the current one,
// retrying until no concurrent writer interferes. Values stored under
// keys passed to Update must be comparable.
func (m *Map[K, V]) Update(k K, f func(v V, exists bool) V) V {
	for {
		old, loaded := m.m.Load(k)
		if !loaded {
			var zero V
			nv := f(zero, false)
			if _, raced := m.m.LoadOrStore(k, nv); !raced {
				return nv
			}
			continue
		}

		nv := f(old.(V), true)
		if m.m.CompareAndSwap(k, old, nv) {
			return nv
		}
	}
}

func (m *Map[K, V]) Delete(k K) {
	m.m.Delete(k)
}

func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

func (m *Map[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
