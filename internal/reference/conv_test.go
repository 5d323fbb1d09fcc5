package reference

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
)

func randSlice(r *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

// naive evaluates the convolution sum for every output element.
func naive(p *conv.Param, src, weight, bias []float32) []float32 {
	cpg, dpg := p.SrcC/p.Group, p.DstC/p.Group
	dst := make([]float32, p.SizeD())
	for dy := 0; dy < p.DstH; dy++ {
		for dx := 0; dx < p.DstW; dx++ {
			for dc := 0; dc < p.DstC; dc++ {
				g := dc / dpg
				sum := bias[dc]
				for ky := 0; ky < p.KernelY; ky++ {
					for kx := 0; kx < p.KernelX; kx++ {
						sy := dy*p.StrideY + ky - p.PadY
						sx := dx*p.StrideX + kx - p.PadX
						if sy < 0 || sy >= p.SrcH || sx < 0 || sx >= p.SrcW {
							continue
						}
						for sc := 0; sc < cpg; sc++ {
							s := src[(sy*p.SrcW+sx)*p.SrcC+g*cpg+sc]
							w := weight[((ky*p.KernelX+kx)*cpg+sc)*p.DstC+dc]
							sum += s * w
						}
					}
				}
				dst[(dy*p.DstW+dx)*p.DstC+dc] = sum
			}
		}
	}
	return dst
}

func TestConvolutionMatchesNaive(t *testing.T) {
	tests := []struct {
		name string
		p    conv.Param
	}{
		{"pointwise", conv.Param{SrcC: 5, SrcH: 4, SrcW: 3, DstC: 7, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1}},
		{"3x3 dense padded", conv.Param{SrcC: 3, SrcH: 6, SrcW: 5, DstC: 4, KernelY: 3, KernelX: 3, StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 1}},
		{"3x3 stride2", conv.Param{SrcC: 2, SrcH: 7, SrcW: 7, DstC: 6, KernelY: 3, KernelX: 3, StrideY: 2, StrideX: 2, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 1}},
		{"grouped", conv.Param{SrcC: 4, SrcH: 5, SrcW: 5, DstC: 6, KernelY: 3, KernelX: 2, StrideY: 1, StrideX: 2, PadY: 1, PadX: 0, PadH: 0, PadW: 1, Group: 2}},
		{"depthwise", conv.Param{SrcC: 6, SrcH: 5, SrcW: 6, DstC: 6, KernelY: 3, KernelX: 3, StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 6}},
		{"depthwise 5x5 stride2", conv.Param{SrcC: 3, SrcH: 9, SrcW: 8, DstC: 3, KernelY: 5, KernelX: 5, StrideY: 2, StrideX: 2, PadY: 2, PadX: 2, PadH: 2, PadW: 2, Group: 3}},
	}

	r := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			require.NoError(t, p.Resolve())

			src := randSlice(r, p.SizeS())
			weight := randSlice(r, p.SizeW())
			bias := randSlice(r, p.DstC)

			got := make([]float32, p.SizeD())
			Convolution(&p, src, weight, bias, nil, got)

			assert.InDeltaSlice(t, naive(&p, src, weight, bias), got, 1e-4)
		})
	}
}

func TestConvolutionActivation(t *testing.T) {
	p := conv.Param{SrcC: 2, SrcH: 1, SrcW: 1, DstC: 2, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1, Activation: activation.Prelu}
	require.NoError(t, p.Resolve())

	src := []float32{1, 1}
	weight := []float32{-1, 1, -1, 1}
	dst := make([]float32, 2)
	Convolution(&p, src, weight, nil, []float32{0.5, 0.25}, dst)
	assert.Equal(t, []float32{-1, 2}, dst)

	p.Activation = activation.RestrictRange
	Convolution(&p, src, weight, nil, []float32{-0.5, 1}, dst)
	assert.Equal(t, []float32{-0.5, 1}, dst)

	// Bias is added before the per-channel slopes on every pixel.
	p = conv.Param{SrcC: 2, SrcH: 1, SrcW: 2, DstC: 2, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1, Activation: activation.Prelu}
	require.NoError(t, p.Resolve())
	dst = make([]float32, 4)
	Convolution(&p, []float32{1, 1, 2, 0}, weight, []float32{1, -3}, []float32{0.5, 0.25}, dst)
	assert.Equal(t, []float32{-0.5, -0.25, -0.5, -0.25}, dst)
}

func TestConvolutionPanicsOnShortBuffers(t *testing.T) {
	p := conv.Param{SrcC: 2, SrcH: 2, SrcW: 2, DstC: 2, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1}
	require.NoError(t, p.Resolve())

	assert.Panics(t, func() { Convolution(&p, make([]float32, 3), make([]float32, 4), nil, nil, make([]float32, 8)) })
	assert.Panics(t, func() { Convolution(&p, make([]float32, 8), make([]float32, 4), nil, nil, make([]float32, 3)) })
	assert.Panics(t, func() { Convolution(&p, make([]float32, 8), make([]float32, 1), nil, nil, make([]float32, 8)) })
}

func TestChainResidual(t *testing.T) {
	expand := conv.Param{SrcC: 2, SrcH: 3, SrcW: 3, DstC: 4, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1, Activation: activation.Relu}
	dw := conv.Param{SrcC: 4, SrcH: 3, SrcW: 3, DstC: 4, KernelY: 3, KernelX: 3, StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 4}
	project := conv.Param{SrcC: 4, SrcH: 3, SrcW: 3, DstC: 2, KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1}
	for _, p := range []*conv.Param{&expand, &dw, &project} {
		require.NoError(t, p.Resolve())
	}

	r := rand.New(rand.NewSource(2))
	stages := []Stage{
		{Param: expand, Weight: randSlice(r, expand.SizeW()), Bias: randSlice(r, 4)},
		{Param: dw, Weight: randSlice(r, dw.SizeW()), Bias: randSlice(r, 4)},
		{Param: project, Weight: randSlice(r, project.SizeW()), Bias: randSlice(r, 2)},
	}
	src := randSlice(r, 2*expand.SizeS())

	plain := Chain(2, stages, false, src)
	withAdd := Chain(2, stages, true, src)
	require.Len(t, withAdd, len(src))
	for i := range src {
		assert.InDelta(t, plain[i]+src[i], withAdd[i], 1e-6)
	}

	assert.Panics(t, func() { Chain(1, stages[:2], true, src) })
}
