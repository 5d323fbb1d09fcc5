package merged

import (
	"fmt"

	"github.com/born-ml/mergeconv/internal/arch"
	"github.com/born-ml/mergeconv/internal/conv"
)

// Plan is the tiling of a fused variant.
//
// Channels are processed in blocks of MaC, a multiple of the lane width MiC.
// Ring 0 holds expanded rows awaiting the depthwise stage, ring 1 holds
// depthwise rows awaiting the projection. Ring heights are powers of two.
type Plan struct {
	MiC   int
	MaC   int
	BufH  [2]int
	YStep [2]int
	SizeB [2]int
}

// NewPlan computes the tiling of p for variant v at the given lane width.
//
// The channel block splits the weights into as many blocks as needed to keep
// each within half of L3. The vertical step starts at the full depthwise
// output height and shrinks by one row until both rings fit in L2; a step
// of one row is always accepted. A positive blockMajor overrides the channel
// block, rounded up to a multiple of lanes.
func NewPlan(p *Param, v Variant, lanes int, cache arch.Cache, blockMajor int) Plan {
	pl := Plan{MiC: lanes}
	if v == VariantGeneric {
		return pl
	}

	dw := &p.Conv[v.depthwise()]
	channels := dw.DstC

	size := 0
	for _, c := range p.Stages() {
		size += c.KernelY * c.KernelX * c.SrcC * c.DstC / c.Group
	}
	count := size*4/(cache.L3/2) + 1
	pl.MaC = min(max(conv.AlignHi(channels/count, 2*lanes), 2*lanes), conv.AlignHi(channels, 2*lanes))
	if blockMajor > 0 {
		pl.MaC = min(conv.AlignHi(blockMajor, lanes), conv.AlignHi(channels, lanes))
	}

	for yStep := dw.DstH; yStep > 0; yStep-- {
		switch v {
		case VariantDc:
			pl.YStep[1] = yStep
			pl.BufH[1] = conv.Pow2Hi(yStep)
			pl.SizeB[1] = pl.BufH[1] * dw.DstW * pl.MaC
		default:
			src := &p.Conv[0]
			pl.YStep[1] = yStep
			pl.YStep[0] = yStep * dw.StrideY
			pl.BufH[0] = conv.Pow2Hi((yStep-1)*dw.StrideY + dw.KernelY)
			pl.SizeB[0] = pl.BufH[0] * src.DstW * pl.MaC
			if v == VariantCdc {
				pl.BufH[1] = conv.Pow2Hi(yStep)
				pl.SizeB[1] = pl.BufH[1] * dw.DstW * pl.MaC
			}
		}
		if (pl.SizeB[0]+pl.SizeB[1])*4 <= cache.L2 {
			break
		}
	}
	return pl
}

// BufferSize returns the number of scratch floats both rings need.
func (pl Plan) BufferSize() int {
	return pl.SizeB[0] + pl.SizeB[1]
}

func (pl Plan) String() string {
	return fmt.Sprintf("miC=%d maC=%d bufH=%v yStep=%v sizeB=%v",
		pl.MiC, pl.MaC, pl.BufH, pl.YStep, pl.SizeB)
}
