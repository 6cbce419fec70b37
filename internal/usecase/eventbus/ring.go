package eventbus

// ring is a bounded FIFO that drops the oldest element once full.
// It is not safe for concurrent use; the bus guards it with its own mutex.
type ring[T any] struct {
	buf   []T
	start int
	size  int
	total uint64 // elements ever pushed, including dropped ones
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.total++
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// items returns a copy of the contents, oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int { return r.size }

func (r *ring[T]) dropped() uint64 { return r.total - uint64(r.size) }
