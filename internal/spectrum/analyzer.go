package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// DefaultBins is the number of output bins.
	DefaultBins = 16
	// DefaultCompression is the exponent applied after normalization.
	DefaultCompression = 0.6
)

var (
	ErrEmptyBlock = errors.New("empty audio block")
	ErrBlockSize  = errors.New("unexpected audio block size")
	ErrNonFinite  = errors.New("audio block contains non-finite samples")
)

// Vector holds one magnitude per bin.
type Vector []float64

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// IsZero reports whether every bin is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCompression sets the power-law exponent applied to normalized bins.
func WithCompression(exp float64) Option {
	return func(a *Analyzer) {
		a.compression = exp
	}
}

// Analyzer converts fixed-size sample blocks into spectrum vectors. It holds
// only precomputed tables, so one Analyzer may be shared between goroutines.
type Analyzer struct {
	blockSize   int
	bins        int
	spectrumLen int
	compression float64
	window      []float64
	indices     []int
}

// NewAnalyzer precomputes the window and bin indices for blockSize samples.
func NewAnalyzer(blockSize, bins int, opts ...Option) (*Analyzer, error) {
	if blockSize < 2 {
		return nil, fmt.Errorf("block size must be >= 2: %d", blockSize)
	}
	if bins <= 0 {
		return nil, fmt.Errorf("bin count must be > 0: %d", bins)
	}

	a := &Analyzer{
		blockSize:   blockSize,
		bins:        bins,
		spectrumLen: blockSize/2 + 1,
		compression: DefaultCompression,
		window:      window.Hann(blockSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.compression <= 0 || math.IsNaN(a.compression) || math.IsInf(a.compression, 0) {
		return nil, fmt.Errorf("compression exponent must be > 0: %v", a.compression)
	}

	if a.spectrumLen > bins {
		a.indices = LogIndices(a.spectrumLen, bins)
	}

	return a, nil
}

// BlockSize returns the expected number of samples per block.
func (a *Analyzer) BlockSize() int { return a.blockSize }

// Bins returns the output vector length.
func (a *Analyzer) Bins() int { return a.bins }

// SpectrumLen returns the half-spectrum length, blockSize/2+1.
func (a *Analyzer) SpectrumLen() int { return a.spectrumLen }

// Indices returns the spectrum index sampled by each bin. It is nil when the
// spectrum is not longer than the bin count and bins are filled directly.
func (a *Analyzer) Indices() []int {
	if a.indices == nil {
		return nil
	}
	out := make([]int, len(a.indices))
	copy(out, a.indices)
	return out
}

// BinForFrequency returns the bin whose spectrum index lies nearest to freq.
func (a *Analyzer) BinForFrequency(freq, sampleRate float64) int {
	pos := freq * float64(a.blockSize) / sampleRate

	if a.indices == nil {
		b := int(math.Round(pos))
		return max(0, min(b, a.spectrumLen-1))
	}

	best := 0
	bestDist := math.Inf(1)
	for k, idx := range a.indices {
		if d := math.Abs(float64(idx) - pos); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// Analyze windows block, computes its magnitude spectrum and reduces it to
// a normalized, compressed vector of Bins() values in [0,1].
func (a *Analyzer) Analyze(block []float32) (Vector, error) {
	if len(block) == 0 {
		return nil, ErrEmptyBlock
	}
	if len(block) != a.blockSize {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrBlockSize, len(block), a.blockSize)
	}

	x := make([]float64, a.blockSize)
	for i, s := range block {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w at sample %d", ErrNonFinite, i)
		}
		x[i] = v * a.window[i]
	}

	coeffs := fft.FFTReal(x)
	mags := make([]float64, a.spectrumLen)
	for i := range mags {
		mags[i] = cmplx.Abs(coeffs[i])
	}

	out := a.sample(mags)
	normalize(out)
	compress(out, a.compression)
	return out, nil
}

func (a *Analyzer) sample(mags []float64) Vector {
	out := make(Vector, a.bins)
	if a.indices == nil {
		// Short spectrum: copied as is, remaining bins stay zero.
		copy(out, mags)
		return out
	}
	for k, idx := range a.indices {
		out[k] = mags[idx]
	}
	return out
}

// normalize divides by the maximum; silence is left at zero.
func normalize(v Vector) {
	peak := 0.0
	for _, x := range v {
		if x > peak {
			peak = x
		}
	}
	if peak == 0 {
		return
	}
	for i := range v {
		v[i] /= peak
	}
}

func compress(v Vector, exp float64) {
	for i, x := range v {
		if x > 0 {
			v[i] = math.Pow(x, exp)
		}
	}
}

// LogIndices returns bins spectrum indices spaced logarithmically from index 1
// to spectrumLen-1, rounded and de-duplicated. When rounding collapses
// neighbours so fewer than bins unique indices remain, it falls back to
// linear spacing over [0, spectrumLen-1], which always yields bins values.
func LogIndices(spectrumLen, bins int) []int {
	if spectrumLen <= 0 || bins <= 0 {
		return nil
	}

	last := spectrumLen - 1
	if last >= 1 && bins > 1 {
		top := math.Log(float64(last))
		idx := make([]int, 0, bins)
		prev := -1
		for k := 0; k < bins; k++ {
			i := int(math.Round(math.Exp(top * float64(k) / float64(bins-1))))
			if i > last {
				i = last
			}
			if i != prev {
				idx = append(idx, i)
				prev = i
			}
		}
		if len(idx) == bins {
			return idx
		}
	}

	return LinearIndices(spectrumLen, bins)
}

// LinearIndices returns bins evenly spaced indices over [0, spectrumLen-1].
func LinearIndices(spectrumLen, bins int) []int {
	if spectrumLen <= 0 || bins <= 0 {
		return nil
	}

	last := spectrumLen - 1
	idx := make([]int, bins)
	if bins == 1 {
		return idx
	}
	for k := range idx {
		idx[k] = int(math.Round(float64(k) * float64(last) / float64(bins-1)))
	}
	return idx
}
