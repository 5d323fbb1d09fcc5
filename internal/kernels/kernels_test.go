package kernels

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
	"github.com/born-ml/mergeconv/internal/reference"
)

func randSlice(r *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

// packDepthwise lays [KernelY][KernelX][C] weights out as blocks of
// [KernelY*KernelX][lanes].
func packDepthwise(p *conv.Param, lanes int, weight []float32) []float32 {
	taps := p.KernelY * p.KernelX
	out := make([]float32, conv.AlignHi(p.DstC, lanes)*taps)
	for ch := 0; ch < p.DstC; ch++ {
		for t := 0; t < taps; t++ {
			out[(ch/lanes*taps+t)*lanes+ch%lanes] = weight[t*p.DstC+ch]
		}
	}
	return out
}

// toRing copies an NHWC image into a ring plane holding every row.
func toRing(p *conv.Param, lanes int, src []float32) Plane {
	bufH := conv.Pow2Hi(p.SrcH)
	ring := Ring(make([]float32, conv.AlignHi(p.SrcC, lanes)*bufH*p.SrcW), lanes, bufH, p.SrcW)
	for y := 0; y < p.SrcH; y++ {
		for x := 0; x < p.SrcW; x++ {
			for c := 0; c < p.SrcC; c++ {
				ring.Data[ring.Offset(c/lanes, y, x)+c%lanes] = src[(y*p.SrcW+x)*p.SrcC+c]
			}
		}
	}
	return ring
}

func TestDepthwiseMatchesReference(t *testing.T) {
	shapes := []conv.Param{
		{SrcC: 13, SrcH: 7, SrcW: 9, DstC: 13, KernelY: 3, KernelX: 3, StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 13},
		{SrcC: 13, SrcH: 8, SrcW: 8, DstC: 13, KernelY: 3, KernelX: 3, StrideY: 2, StrideX: 2, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 13},
		{SrcC: 13, SrcH: 9, SrcW: 9, DstC: 13, KernelY: 3, KernelX: 3, StrideY: 2, StrideX: 1, PadY: 0, PadX: 1, PadH: 1, PadW: 0, Group: 13},
		{SrcC: 8, SrcH: 2, SrcW: 2, DstC: 8, KernelY: 3, KernelX: 3, StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1, Group: 8},
		{SrcC: 5, SrcH: 11, SrcW: 12, DstC: 5, KernelY: 5, KernelX: 5, StrideY: 1, StrideX: 1, PadY: 2, PadX: 2, PadH: 2, PadW: 2, Group: 5},
		{SrcC: 6, SrcH: 6, SrcW: 20, DstC: 6, KernelY: 3, KernelX: 7, StrideY: 1, StrideX: 1, PadY: 1, PadX: 3, PadH: 1, PadW: 3, Group: 6},
	}
	r := rand.New(rand.NewSource(4))

	for _, shape := range shapes {
		p := shape
		require.NoError(t, p.Resolve())
		src := randSlice(r, p.SizeS())
		weight := randSlice(r, p.SizeW())
		bias := randSlice(r, p.DstC)
		want := make([]float32, p.SizeD())
		reference.Convolution(&p, src, weight, bias, nil, want)

		for _, lanes := range []int{1, 4, 8, 16} {
			factories := map[string]Factory{"generic": newDepthwise}
			if supports3x3(&p) {
				factories["3x3/w4"] = depthwise3x3Factory(4)
				factories["3x3/w8"] = depthwise3x3Factory(8)
			}
			for name, factory := range factories {
				t.Run(fmt.Sprintf("%s/%s/%d", p.String(), name, lanes), func(t *testing.T) {
					run := factory(lanes)
					padded := make([]float32, conv.AlignHi(p.DstC, lanes))
					copy(padded, bias)
					tile := Tile{
						Param:  &p,
						MaC:    p.DstC,
						YBeg:   0,
						YEnd:   p.DstH,
						Weight: packDepthwise(&p, lanes, weight),
						Bias:   padded,
						Params: activation.Scalar(activation.Identity, nil),
						Act:    activation.Lookup(activation.Identity),
					}

					// NHWC in, NHWC out.
					got := make([]float32, p.SizeD())
					tile.Src = NHWC(src, p.SrcC, p.SrcW, lanes)
					tile.Dst = NHWC(got, p.DstC, p.DstW, lanes)
					run(&tile)
					require.InDeltaSlice(t, want, got, 1e-5)

					// Ring in, NHWC out, rows split in two calls.
					clear(got)
					tile.Src = toRing(&p, lanes, src)
					half := p.DstH / 2
					tile.YBeg, tile.YEnd = 0, half
					run(&tile)
					tile.YBeg, tile.YEnd = half, p.DstH
					run(&tile)
					require.InDeltaSlice(t, want, got, 1e-5)
				})
			}
		}
	}
}

func TestPlaneOffset(t *testing.T) {
	ring := Ring(make([]float32, 2*4*3*4), 4, 4, 3)
	require.Equal(t, 1*48+1*12+2*4, ring.Offset(1, 5, 2))

	img := NHWC(make([]float32, 2*3*10), 10, 3, 4)
	require.Equal(t, 4+1*30+2*10, img.Offset(1, 1, 2))
}
