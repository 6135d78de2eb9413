package automapping

import "sync/atomic"

var defaultMapper atomic.Pointer[Mapper]

// Default returns the package-wide Mapper, creating it on first use.
func Default() *Mapper {
	if m := defaultMapper.Load(); m != nil {
		return m
	}
	defaultMapper.CompareAndSwap(nil, New())
	return defaultMapper.Load()
}

// SetDefault replaces the package-wide Mapper. A nil m resets it.
func SetDefault(m *Mapper) {
	defaultMapper.Store(m)
}
