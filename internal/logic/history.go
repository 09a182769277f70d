package logic

// History is a fixed-capacity circular buffer of humidity readings.
// Not safe for concurrent use.
type History struct {
	values []float64
	cursor int // next slot to overwrite
	filled int // valid slots, saturates at len(values)
}

// NewHistory creates a History holding the last capacity readings.
// A capacity below 1 is raised to 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{values: make([]float64, capacity)}
}

// Push records v, evicting the oldest reading once the buffer is full.
func (h *History) Push(v float64) {
	h.values[h.cursor] = v
	h.cursor = (h.cursor + 1) % len(h.values)
	if h.filled < len(h.values) {
		h.filled++
	}
}

// Average returns the mean of the most recent window readings.
// The window is clamped to the readings available; an empty window yields 0.
func (h *History) Average(window int) float64 {
	n := window
	if n > h.filled {
		n = h.filled
	}
	if n > len(h.values) {
		n = len(h.values)
	}
	if n <= 0 {
		return 0
	}

	var sum float64
	i := h.cursor - 1
	for k := 0; k < n; k++ {
		if i < 0 {
			i = len(h.values) - 1
		}
		sum += h.values[i]
		i--
	}
	return sum / float64(n)
}

// Len returns the number of valid readings.
func (h *History) Len() int {
	return h.filled
}

// Cap returns the buffer capacity.
func (h *History) Cap() int {
	return len(h.values)
}

// Values returns a copy of the valid readings, oldest first.
func (h *History) Values() []float64 {
	if h.filled == 0 {
		return nil
	}
	out := make([]float64, h.filled)
	// Oldest reading is at (cursor - filled) mod capacity
	start := (h.cursor - h.filled + len(h.values)) % len(h.values)
	for i := 0; i < h.filled; i++ {
		out[i] = h.values[(start+i)%len(h.values)]
	}
	return out
}
