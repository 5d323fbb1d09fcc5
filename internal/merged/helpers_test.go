package merged

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
	"github.com/born-ml/mergeconv/internal/reference"
)

func pointwise(srcC, h, w, dstC int, act activation.Kind) conv.Param {
	return conv.Param{
		SrcC: srcC, SrcH: h, SrcW: w, DstC: dstC,
		KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1,
		Group: 1, Activation: act,
	}
}

func spatial(srcC, h, w, dstC, k, stride, pad, group int, act activation.Kind) conv.Param {
	return conv.Param{
		SrcC: srcC, SrcH: h, SrcW: w, DstC: dstC,
		KernelY: k, KernelX: k, StrideY: stride, StrideX: stride,
		PadY: pad, PadX: pad, PadH: pad, PadW: pad,
		Group: group, Activation: act,
	}
}

func outSize(n, k, stride, pad int) int {
	return (n+2*pad-k)/stride + 1
}

// invertedResidual builds expand, depthwise and project stages.
func invertedResidual(srcC, h, w, expand, dstC, k, stride int, acts [3]activation.Kind) []conv.Param {
	pad := k / 2
	oh, ow := outSize(h, k, stride, pad), outSize(w, k, stride, pad)
	return []conv.Param{
		pointwise(srcC, h, w, expand, acts[0]),
		spatial(expand, h, w, expand, k, stride, pad, expand, acts[1]),
		pointwise(expand, oh, ow, dstC, acts[2]),
	}
}

type bound struct {
	weights, biases, params [][]float32
}

func randSlice(r *rand.Rand, n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (r.Float32()*2 - 1) * scale
	}
	return out
}

func activationParams(r *rand.Rand, c *conv.Param) []float32 {
	switch {
	case c.Activation.PerChannel():
		return randSlice(r, c.DstC, 0.5)
	case c.Activation == activation.RestrictRange:
		return []float32{-0.5, 0.75}
	default:
		return c.Activation.Defaults()
	}
}

func randBound(r *rand.Rand, p *Param) bound {
	var b bound
	for _, c := range p.Stages() {
		fanIn := float32(c.KernelY * c.KernelX * c.SrcC / c.Group)
		b.weights = append(b.weights, randSlice(r, c.SizeW(), 1/float32(math.Sqrt(float64(fanIn)))))
		b.biases = append(b.biases, randSlice(r, c.DstC, 0.1))
		b.params = append(b.params, activationParams(r, &c))
	}
	return b
}

func referenceForward(p *Param, b bound, src []float32) []float32 {
	stages := make([]reference.Stage, p.Count)
	for i := range stages {
		stages[i] = reference.Stage{Param: p.Conv[i], Weight: b.weights[i], Bias: b.biases[i], Params: b.params[i]}
	}
	return reference.Chain(p.Batch, stages, p.Add, src)
}

func mustValidate(t testing.TB, batch int, convs []conv.Param, add bool, compat Compatibility) Param {
	t.Helper()
	p, err := Validate(batch, convs, add, compat)
	require.NoError(t, err)
	return p
}

func mustNew(t testing.TB, p Param, opts ...Option) *Engine {
	t.Helper()
	e, err := New(p, opts...)
	require.NoError(t, err)
	return e
}

// requireClose checks got against want with a tolerance relative to the
// magnitude of each expected value.
func requireClose(t testing.TB, want, got []float32, tol float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		diff := math.Abs(float64(want[i] - got[i]))
		scale := math.Max(1, math.Abs(float64(want[i])))
		if diff/scale > tol {
			require.Failf(t, "values differ", "index %d: want %g, got %g", i, want[i], got[i])
		}
	}
}

// run binds b to a new engine and forwards src.
func run(t testing.TB, p Param, b bound, src []float32, opts ...Option) []float32 {
	t.Helper()
	e := mustNew(t, p, opts...)
	e.SetParams(b.weights, nil, b.biases, b.params)
	dst := make([]float32, p.Batch*p.Dst().SizeD())
	e.Forward(src, nil, dst)
	return dst
}
