// Package conv describes a single 2D convolution stage over NHWC tensors.
package conv

import (
	"fmt"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/tensor"
)

// Param describes one convolution stage.
//
// Weights are laid out [KernelY][KernelX][SrcC/Group][DstC]. PadY and PadX
// are the top and left padding, PadH and PadW the bottom and right padding.
// DstH and DstW are derived by Resolve.
type Param struct {
	SrcC, SrcH, SrcW int
	DstC, DstH, DstW int

	KernelY, KernelX int
	StrideY, StrideX int
	PadY, PadX       int
	PadH, PadW       int

	Group      int
	Activation activation.Kind
}

// Resolve derives DstH and DstW from the source size, kernel, stride and padding.
func (p *Param) Resolve() error {
	if p.KernelY < 1 || p.KernelX < 1 || p.StrideY < 1 || p.StrideX < 1 {
		panic(fmt.Sprintf("conv: kernel %dx%d and stride %dx%d must be positive",
			p.KernelY, p.KernelX, p.StrideY, p.StrideX))
	}
	if p.Group < 1 || p.SrcC%p.Group != 0 || p.DstC%p.Group != 0 {
		panic(fmt.Sprintf("conv: group %d must divide channels %d and %d", p.Group, p.SrcC, p.DstC))
	}
	if !p.Activation.Valid() {
		panic(fmt.Sprintf("conv: unknown activation %d", int(p.Activation)))
	}

	p.DstH = outSize(p.SrcH, p.PadY+p.PadH, p.KernelY, p.StrideY)
	p.DstW = outSize(p.SrcW, p.PadX+p.PadW, p.KernelX, p.StrideX)
	if err := p.SrcShape(1).Validate(); err != nil {
		p.DstH, p.DstW = 0, 0
		return fmt.Errorf("%w: src %w", ErrInvalidShape, err)
	}
	if err := p.DstShape(1).Validate(); err != nil {
		return fmt.Errorf("%w: dst %w", ErrInvalidShape, err)
	}
	return nil
}

// outSize returns the output extent, or 0 when the kernel does not fit.
func outSize(src, pad, kernel, stride int) int {
	span := src + pad - kernel
	if span < 0 {
		return 0
	}
	return span/stride + 1
}

// Is1x1 reports whether the stage is a 1x1 kernel with unit stride and no padding.
func (p *Param) Is1x1() bool {
	return p.KernelY == 1 && p.KernelX == 1 &&
		p.StrideY == 1 && p.StrideX == 1 &&
		p.PadY == 0 && p.PadX == 0 && p.PadH == 0 && p.PadW == 0
}

// IsKernel reports whether the kernel is n x n.
func (p *Param) IsKernel(n int) bool {
	return p.KernelY == n && p.KernelX == n
}

// IsDepthwise reports whether every channel is convolved independently.
func (p *Param) IsDepthwise() bool {
	return p.Group == p.SrcC && p.Group == p.DstC
}

// IsPointwise reports whether the stage is a dense 1x1 convolution.
func (p *Param) IsPointwise() bool {
	return p.Is1x1() && p.Group == 1
}

// NoseH returns the first output row whose taps are all inside the source.
func (p *Param) NoseH() int {
	return min(DivHi(p.PadY, p.StrideY), p.DstH)
}

// NoseW returns the first output column whose taps are all inside the source.
func (p *Param) NoseW() int {
	return min(DivHi(p.PadX, p.StrideX), p.DstW)
}

// BodyH returns one past the last output row whose taps are all inside the source.
func (p *Param) BodyH() int {
	return bodyEnd(p.SrcH, p.PadY, p.KernelY, p.StrideY, p.NoseH(), p.DstH)
}

// BodyW returns one past the last output column whose taps are all inside the source.
func (p *Param) BodyW() int {
	return bodyEnd(p.SrcW, p.PadX, p.KernelX, p.StrideX, p.NoseW(), p.DstW)
}

func bodyEnd(src, pad, kernel, stride, nose, dst int) int {
	span := pad + src - kernel
	if span < 0 {
		return nose
	}
	return max(nose, min(span/stride+1, dst))
}

// SrcShape returns the NHWC source shape for batch items.
func (p *Param) SrcShape(batch int) tensor.Shape {
	return tensor.NHWC(batch, p.SrcH, p.SrcW, p.SrcC)
}

// DstShape returns the NHWC destination shape for batch items.
func (p *Param) DstShape(batch int) tensor.Shape {
	return tensor.NHWC(batch, p.DstH, p.DstW, p.DstC)
}

// SizeS returns the number of source elements per batch item.
func (p *Param) SizeS() int { return p.SrcH * p.SrcW * p.SrcC }

// SizeD returns the number of destination elements per batch item.
func (p *Param) SizeD() int { return p.DstH * p.DstW * p.DstC }

// SizeW returns the number of weights.
func (p *Param) SizeW() int { return p.KernelY * p.KernelX * p.SrcC / p.Group * p.DstC }

// Flop returns the multiply-add count of one batch item, counted as two operations.
func (p *Param) Flop() int64 {
	return int64(p.DstH*p.DstW) * int64(p.SizeW()) * 2
}

// String formats the stage as srcC x srcH x srcW - dstC x kY x kX - stride - group.
func (p *Param) String() string {
	return fmt.Sprintf("%dx%dx%d-%dx%dx%d-%d-%d-%s",
		p.SrcC, p.SrcH, p.SrcW, p.DstC, p.KernelY, p.KernelX, p.StrideY, p.Group, p.Activation)
}
