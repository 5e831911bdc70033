package risk

import "time"

// Sample is one timestamped behavioral observation.
type Sample struct {
	Value string
	Class Class
	At    time.Time
}

// window is a bounded FIFO of samples; pushing past capacity evicts the
// oldest first.
type window struct {
	max   int
	items []Sample
}

func newWindow(max int) *window {
	return &window{max: max}
}

func (w *window) push(s Sample) {
	if len(w.items) >= w.max {
		w.items = w.items[1:]
	}
	w.items = append(w.items, s)
}

// last returns up to n newest samples, oldest first.
func (w *window) last(n int) []Sample {
	if n >= len(w.items) {
		return w.items
	}
	return w.items[len(w.items)-n:]
}

// countSince counts samples with At in (since, +inf).
func (w *window) countSince(since time.Time) int {
	n := 0
	for i := len(w.items) - 1; i >= 0; i-- {
		if !w.items[i].At.After(since) {
			break
		}
		n++
	}
	return n
}

func (w *window) len() int { return len(w.items) }
