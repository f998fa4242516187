package dspkit

import "math"

// Complex is float64 in/out; kept as a plain struct rather than the
// built-in complex128 so callers building PCM pipelines don't need to
// juggle two numeric representations.
type Complex struct {
	Re, Im float64
}

func (c Complex) Add(o Complex) Complex { return Complex{c.Re + o.Re, c.Im + o.Im} }
func (c Complex) Sub(o Complex) Complex { return Complex{c.Re - o.Re, c.Im - o.Im} }
func (c Complex) Mul(o Complex) Complex {
	return Complex{c.Re*o.Re - c.Im*o.Im, c.Re*o.Im + c.Im*o.Re}
}
func (c Complex) Conj() Complex           { return Complex{c.Re, -c.Im} }
func (c Complex) Abs() float64            { return math.Hypot(c.Re, c.Im) }
func (c Complex) Scale(s float64) Complex { return Complex{c.Re * s, c.Im * s} }

// Div performs complex division c/o.
func (c Complex) Div(o Complex) Complex {
	d := o.Re*o.Re + o.Im*o.Im
	if d == 0 {
		return Complex{}
	}
	return Complex{
		Re: (c.Re*o.Re + c.Im*o.Im) / d,
		Im: (c.Im*o.Re - c.Re*o.Im) / d,
	}
}

// Sqrt returns the principal complex square root.
func (c Complex) Sqrt() Complex {
	r := c.Abs()
	if r == 0 {
		return Complex{}
	}
	re := math.Sqrt((r + c.Re) / 2)
	im := math.Sqrt((r - c.Re) / 2)
	if c.Im < 0 {
		im = -im
	}
	return Complex{Re: re, Im: im}
}

// DFT performs a direct (O(n^2)) discrete Fourier transform. The modem's
// symbol length (sample_rate/7.5) is not a power of two, so a textbook
// radix-2 FFT can't be used directly without zero-padding to a different
// length than the wire format calls for; a direct transform keeps bin
// indices exactly aligned with the tone layout at the cost of speed.
//
// TODO: swap in a mixed-radix (Bluestein) transform once symbol_len no
// longer needs to double as the FFT size — not needed for correctness here.
func DFT(x []Complex) []Complex {
	n := len(x)
	out := make([]Complex, n)
	for k := 0; k < n; k++ {
		var sum Complex
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum = sum.Add(x[t].Mul(Complex{math.Cos(angle), math.Sin(angle)}))
		}
		out[k] = sum
	}
	return out
}

// IDFT is the inverse of DFT, normalized by 1/n.
func IDFT(x []Complex) []Complex {
	n := len(x)
	out := make([]Complex, n)
	for t := 0; t < n; t++ {
		var sum Complex
		for k := 0; k < n; k++ {
			angle := 2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum = sum.Add(x[k].Mul(Complex{math.Cos(angle), math.Sin(angle)}))
		}
		out[t] = sum.Scale(1 / float64(n))
	}
	return out
}
