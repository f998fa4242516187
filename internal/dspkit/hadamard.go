package dspkit

// Hadamard implements the order-N Walsh-Hadamard biorthogonal code: 2^N
// codewords, each of length 2^N, each a row of the Sylvester-construction
// Hadamard matrix over {-1,+1}. The modem uses order 6 (64 rows, extended
// by negation to 128 biorthogonal codewords) to carry the per-symbol pilot/PAPR seed value and to Hadamard-decode it back
// out of a noisy received vector via the fast Walsh-Hadamard transform.
type Hadamard struct {
	order int
	n     int // 2^order
}

func NewHadamard(order int) *Hadamard {
	return &Hadamard{order: order, n: 1 << uint(order)}
}

func (h *Hadamard) N() int { return h.n }

// Encode returns the length-N codeword (+1/-1) for the given seed value in
// [0, 2^order).
func (h *Hadamard) Encode(seed int) []int8 {
	row := make([]int8, h.n)
	for col := 0; col < h.n; col++ {
		row[col] = hadamardEntry(seed, col)
	}
	return row
}

// hadamardEntry computes H[row][col] = (-1)^popcount(row & col) without
// materializing the matrix.
func hadamardEntry(row, col int) int8 {
	v := row & col
	parity := 0
	for v != 0 {
		parity ^= v & 1
		v >>= 1
	}
	if parity != 0 {
		return -1
	}
	return 1
}

// Decode performs a fast Walsh-Hadamard transform over soft values (one per
// tone) and returns the seed whose codeword best correlates with the input,
// along with the normalized correlation magnitude (useful as an SNR proxy).
func (h *Hadamard) Decode(soft []float64) (seed int, correlation float64) {
	n := h.n
	buf := make([]float64, n)
	copy(buf, soft)
	for step := 1; step < n; step <<= 1 {
		for i := 0; i < n; i += step * 2 {
			for j := i; j < i+step; j++ {
				a, b := buf[j], buf[j+step]
				buf[j] = a + b
				buf[j+step] = a - b
			}
		}
	}
	best := 0
	bestVal := buf[0]
	for i := 1; i < n; i++ {
		if abs64(buf[i]) > abs64(bestVal) {
			bestVal = buf[i]
			best = i
		}
	}
	return best, abs64(bestVal) / float64(n)
}

// DecodeSigned is Decode but also reports whether the best match was the
// codeword itself (sign=+1) or its negation (sign=-1) — used when a seed
// alphabet larger than N is built as a biorthogonal extension (codewords
// for N..2N-1 being the negated rows of 0..N-1).
func (h *Hadamard) DecodeSigned(soft []float64) (idx int, sign int, correlation float64) {
	n := h.n
	buf := make([]float64, n)
	copy(buf, soft)
	for step := 1; step < n; step <<= 1 {
		for i := 0; i < n; i += step * 2 {
			for j := i; j < i+step; j++ {
				a, b := buf[j], buf[j+step]
				buf[j] = a + b
				buf[j+step] = a - b
			}
		}
	}
	best := 0
	bestVal := buf[0]
	for i := 1; i < n; i++ {
		if abs64(buf[i]) > abs64(bestVal) {
			bestVal = buf[i]
			best = i
		}
	}
	sign = 1
	if bestVal < 0 {
		sign = -1
	}
	return best, sign, abs64(bestVal) / float64(n)
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
