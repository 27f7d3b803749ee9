package trace

import "errors"

// ErrAMOUnderflow is the panic value raised when an atomic commit is
// rendered without a matching AMO write.
var ErrAMOUnderflow = errors.New("trace: AMO queue underflow")

// AMOQueue holds the values written by outstanding atomic operations. It is
// last-in, first-out.
type AMOQueue struct {
	values []uint64
}

// Push records the value an AMO wrote to memory.
func (q *AMOQueue) Push(v uint64) {
	q.values = append(q.values, v)
}

// Pop removes and returns the most recent value. An empty queue means the
// driver broke the push-before-commit contract, and Pop panics with
// ErrAMOUnderflow.
func (q *AMOQueue) Pop() uint64 {
	n := len(q.values)
	if n == 0 {
		panic(ErrAMOUnderflow)
	}
	v := q.values[n-1]
	q.values = q.values[:n-1]
	return v
}

// Len returns the number of queued values.
func (q *AMOQueue) Len() int {
	return len(q.values)
}
