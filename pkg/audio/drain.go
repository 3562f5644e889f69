package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// prevent goroutine leaks when a frame channel must be consumed to
// completion but its contents are no longer wanted (e.g. after hangup).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
