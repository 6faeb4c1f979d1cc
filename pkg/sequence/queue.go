package sequence

// Queue is a FIFO ring buffer. The zero value is ready to use.
type Queue[T any] struct {
	items []T
	head  int
	size  int
}

// NewQueue creates a queue with room for capacity items before it grows.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{items: make([]T, capacity)}
}

func (q *Queue[T]) grow() {
	next := len(q.items) * 2
	if next == 0 {
		next = 8
	}
	items := make([]T, next)
	for i := 0; i < q.size; i++ {
		items[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = items
	q.head = 0
}

// Enqueue appends value at the tail.
func (q *Queue[T]) Enqueue(value T) {
	if q.size == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.size)%len(q.items)] = value
	q.size++
}

// Dequeue removes and returns the head.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	value := q.items[q.head]
	q.items[q.head] = zero // avoid memory leak
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return value, true
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

func (q *Queue[T]) Len() int {
	return q.size
}

func (q *Queue[T]) IsEmpty() bool {
	return q.size == 0
}
