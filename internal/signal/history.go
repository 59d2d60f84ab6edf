package signal

// History — ограниченный FIFO-ряд пар (fast, slow). Инвариант: длины
// fast и slow всегда равны; при переполнении сначала вытесняется
// старейшая точка.
type History struct {
	cap  int
	fast []float64
	slow []float64
}

func NewHistory(capacity int) *History {
	if capacity < 2 {
		capacity = 2
	}
	return &History{
		cap:  capacity,
		fast: make([]float64, 0, capacity),
		slow: make([]float64, 0, capacity),
	}
}

func (h *History) Append(fast, slow float64) {
	if len(h.fast) >= h.cap {
		h.fast = h.fast[1:]
		h.slow = h.slow[1:]
	}
	h.fast = append(h.fast, fast)
	h.slow = append(h.slow, slow)
}

// Seed заливает персистентный хвост при старте (последние точки из БД).
func (h *History) Seed(fast, slow []float64) {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	for i := 0; i < n; i++ {
		h.Append(fast[i], slow[i])
	}
}

func (h *History) Len() int { return len(h.fast) }

func (h *History) Fast() []float64 { return append([]float64(nil), h.fast...) }
func (h *History) Slow() []float64 { return append([]float64(nil), h.slow...) }

// CrossedUp: быстрая пересекла медленную снизу вверх между двумя
// последними точками. Меньше двух точек — сигнала нет, это не ошибка.
func (h *History) CrossedUp() bool {
	n := len(h.fast)
	if n < 2 {
		return false
	}
	return h.fast[n-1] >= h.slow[n-1] && h.fast[n-2] < h.slow[n-2]
}

// CrossedDown — зеркальное условие.
func (h *History) CrossedDown() bool {
	n := len(h.fast)
	if n < 2 {
		return false
	}
	return h.fast[n-1] <= h.slow[n-1] && h.fast[n-2] > h.slow[n-2]
}
