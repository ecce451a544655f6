//go:build !debug

package channel

// New creates a new channel with the given buffer size.
// Production builds return a buffered channel so feed connections absorb
// write bursts.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
