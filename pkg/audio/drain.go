package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to let a producer finish when its output is no longer wanted,
// e.g. the Frames channel of a cancelled [Stream].
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
