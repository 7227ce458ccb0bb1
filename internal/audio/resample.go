package audio

import (
	"math"
)

// Resampler converts a mono int16 PCM stream between two fixed sample rates
// using a band-limited windowed-sinc polyphase filter. It is streaming:
// Process may be called with arbitrary-sized chunks and keeps enough input
// history to stay continuous across calls.
type Resampler struct {
	srcRate int
	dstRate int
	l       int // interpolation factor
	m       int // decimation factor
	taps    int // taps per polyphase branch
	h       []float64

	buf      []int16
	bufStart int64 // global input index of buf[0]
	nextOut  int64 // global index of the next output sample
}

// NewResampler creates a resampler from srcRate to dstRate.
// Identical rates yield a pass-through resampler.
func NewResampler(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, &FormatError{Reason: "sample rates must be positive"}
	}

	g := gcd(srcRate, dstRate)
	l := dstRate / g
	m := srcRate / g

	r := &Resampler{
		srcRate: srcRate,
		dstRate: dstRate,
		l:       l,
		m:       m,
	}
	if l != m {
		r.taps, r.h = designLowpass(l, m)
	}
	return r, nil
}

// designLowpass builds the polyphase prototype filter: a Hamming-windowed
// sinc lowpass with cutoff below Nyquist of the slower rate, gain l.
func designLowpass(l, m int) (tapsPerPhase int, h []float64) {
	slower := l
	if m > slower {
		slower = m
	}

	// Filter sharpness scales with the decimation ratio so the stopband
	// still covers the folded spectrum.
	tapsPerPhase = 8 * slower / l
	if tapsPerPhase < 8 {
		tapsPerPhase = 8
	}

	n := tapsPerPhase * l
	h = make([]float64, n)
	center := float64(n-1) / 2.0
	fc := 0.45 / float64(slower) // normalized cutoff in the upsampled domain

	for k := 0; k < n; k++ {
		x := float64(k) - center
		var s float64
		if x == 0 {
			s = 2 * fc
		} else {
			s = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		// Hamming window
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(k)/float64(n-1))
		h[k] = s * w * float64(l)
	}
	return tapsPerPhase, h
}

// Process consumes a chunk of input samples and returns all output samples
// that can be produced so far. The returned slice is owned by the caller.
func (r *Resampler) Process(in []int16) []int16 {
	if r.l == r.m {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}

	r.buf = append(r.buf, in...)
	avail := r.bufStart + int64(len(r.buf))

	var out []int16
	for {
		t := r.nextOut * int64(r.m)
		p := int(t % int64(r.l))
		q := t / int64(r.l)
		if q >= avail {
			break
		}

		acc := 0.0
		for i := 0; i < r.taps; i++ {
			xi := q - int64(i)
			if xi < 0 {
				break // samples before the stream start are silence
			}
			idx := xi - r.bufStart
			if idx < 0 {
				break
			}
			acc += r.h[p+i*r.l] * float64(r.buf[idx])
		}
		out = append(out, clampSample(acc))
		r.nextOut++
	}

	// Drop input no future output can reference.
	minNeeded := r.nextOut*int64(r.m)/int64(r.l) - int64(r.taps)
	if minNeeded > r.bufStart {
		drop := minNeeded - r.bufStart
		if drop > int64(len(r.buf)) {
			drop = int64(len(r.buf))
		}
		remaining := len(r.buf) - int(drop)
		copy(r.buf, r.buf[drop:])
		r.buf = r.buf[:remaining]
		r.bufStart += drop
	}

	return out
}

// Reset discards all buffered input and restarts the stream.
func (r *Resampler) Reset() {
	r.buf = r.buf[:0]
	r.bufStart = 0
	r.nextOut = 0
}

// Ratio returns the interpolation and decimation factors.
func (r *Resampler) Ratio() (l, m int) {
	return r.l, r.m
}

func clampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
