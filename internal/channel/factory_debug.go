//go:build debug

package channel

// New creates a new channel.
// Debug builds return an unbuffered channel (size ignored) so backpressure
// problems surface immediately instead of hiding in a buffer.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
