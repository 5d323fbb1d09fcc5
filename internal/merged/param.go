// Package merged fuses two or three convolution stages of a depthwise
// separable block into one streaming pass over NHWC tensors.
package merged

import (
	"fmt"
	"strings"

	"github.com/born-ml/mergeconv/internal/conv"
)

// Compatibility selects between speed and cross-CPU reproducibility.
type Compatibility int

// Compatibility modes.
const (
	// CompatFast runs the fused kernels of the selected tier.
	CompatFast Compatibility = iota
	// CompatExact runs every stage unfused through the reference path, so
	// results do not depend on the CPU tier or the tiling plan.
	CompatExact
)

func (c Compatibility) String() string {
	switch c {
	case CompatFast:
		return "fast"
	case CompatExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Param describes a merged convolution over Batch images.
//
// Stage i's output feeds stage i+1; the caller keeps the descriptors
// consistent. With Add set, the source is added to the final output.
type Param struct {
	Batch  int
	Conv   [3]conv.Param
	Count  int
	Add    bool
	Compat Compatibility
}

// Validate resolves every stage and returns the merged parameter.
//
// It returns an error wrapping conv.ErrInvalidShape when a stage has no
// output. A stage count other than 2 or 3, a batch below 1, and a residual
// add that cannot apply are programming errors and panic.
func Validate(batch int, convs []conv.Param, add bool, compat Compatibility) (Param, error) {
	if len(convs) != 2 && len(convs) != 3 {
		panic(fmt.Sprintf("merged: stage count must be 2 or 3, got %d", len(convs)))
	}
	if batch < 1 {
		panic(fmt.Sprintf("merged: batch must be positive, got %d", batch))
	}

	p := Param{Batch: batch, Count: len(convs), Add: add, Compat: compat}
	for i := range convs {
		p.Conv[i] = convs[i]
		if err := p.Conv[i].Resolve(); err != nil {
			return Param{}, fmt.Errorf("stage %d: %w", i, err)
		}
	}

	if add {
		src, dst := p.Src(), p.Dst()
		if p.Count != 3 {
			panic("merged: residual add needs three stages")
		}
		if src.SrcC != dst.DstC || src.SrcH != dst.DstH || src.SrcW != dst.DstW {
			panic(fmt.Sprintf("merged: residual add needs matching shapes, got %v and %v",
				src.SrcShape(batch), dst.DstShape(batch)))
		}
	}
	return p, nil
}

// Stages returns the active stage descriptors.
func (p *Param) Stages() []conv.Param {
	return p.Conv[:p.Count]
}

// Src returns the first stage.
func (p *Param) Src() *conv.Param {
	return &p.Conv[0]
}

// Dst returns the last stage.
func (p *Param) Dst() *conv.Param {
	return &p.Conv[p.Count-1]
}

// Flop returns the multiply-add count of the whole batch, counted as two
// operations.
func (p *Param) Flop() int64 {
	var n int64
	for i := range p.Stages() {
		n += p.Conv[i].Flop()
	}
	return n * int64(p.Batch)
}

// String formats the parameter as batch x srcC x srcH x srcW followed by
// -dstC x kernel x stride for every stage.
func (p *Param) String() string {
	var sb strings.Builder
	src := p.Src()
	fmt.Fprintf(&sb, "%dx%dx%dx%d", p.Batch, src.SrcC, src.SrcH, src.SrcW)
	for _, c := range p.Stages() {
		fmt.Fprintf(&sb, "-%dx%dx%d", c.DstC, c.KernelY, c.StrideY)
	}
	if p.Add {
		sb.WriteString("-add")
	}
	return sb.String()
}
