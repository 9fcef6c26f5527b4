package progress

// speedWindow keeps the last n instantaneous speeds, evicting the oldest.
type speedWindow struct {
	samples []float64
	next    int
	full    bool
}

func newSpeedWindow(size int) *speedWindow {
	if size < 1 {
		size = 1
	}

	return &speedWindow{samples: make([]float64, size)}
}

func (w *speedWindow) push(v float64) {
	if v < 0 {
		v = 0
	}

	w.samples[w.next] = v
	w.next = (w.next + 1) % len(w.samples)

	if w.next == 0 {
		w.full = true
	}
}

func (w *speedWindow) len() int {
	if w.full {
		return len(w.samples)
	}

	return w.next
}

func (w *speedWindow) mean() float64 {
	n := w.len()
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}

	return sum / float64(n)
}
