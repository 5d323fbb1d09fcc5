// Package kernels contains the stage kernels of the fused convolution engine
// and the registry that picks them per CPU tier.
//
// Kernels work on channel blocks of F lanes, where F is the lane width of the
// tier the kernel was built for. Intermediate activations live in ring
// buffers laid out [block][bufH][W][F] and indexed by y & (bufH-1).
//
// Every kernel is portable Go. A tier fixes the lane width F, register tile
// and specializations a kernel is built with; no tier emits ISA-specific
// instructions, so any tier runs on any CPU.
package kernels

import (
	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
)

const (
	maxLanes = 16
	maxTile  = 12
)

// Plane addresses an activation region. Channel b*F+i of pixel (y, x) lives
// at Data[Offset(b, y, x)+i].
type Plane struct {
	Data  []float32
	Block int // distance between consecutive F-channel blocks
	Row   int
	Pixel int
	Mask  int // applied to y; -1 leaves y unwrapped
}

// Ring returns a channel-blocked ring buffer plane of bufH rows.
// bufH must be a power of two.
func Ring(data []float32, lanes, bufH, width int) Plane {
	return Plane{
		Data:  data,
		Block: bufH * width * lanes,
		Row:   width * lanes,
		Pixel: lanes,
		Mask:  bufH - 1,
	}
}

// NHWC returns a plane over one NHWC image with the given channel count.
// data starts at the first channel the plane covers.
func NHWC(data []float32, channels, width, lanes int) Plane {
	return Plane{
		Data:  data,
		Block: lanes,
		Row:   width * channels,
		Pixel: channels,
		Mask:  -1,
	}
}

// Offset returns the index of lane 0 of block b at pixel (y, x).
func (p *Plane) Offset(b, y, x int) int {
	return b*p.Block + (y&p.Mask)*p.Row + x*p.Pixel
}

// Tile is one kernel invocation: destination rows [YBeg, YEnd) of a channel
// block of MaC channels.
//
// Weight, Bias and Params are the reordered parameters of the block. Params
// holds the two scalar activation parameters, or one value per channel of the
// block for per-channel activations.
//
// First and Last are read by the output stage only. First starts the
// accumulation from zero instead of the destination contents; Last adds the
// bias, applies the activation and adds Residual when it is set.
type Tile struct {
	Param *conv.Param
	Src   Plane
	Dst   Plane

	MaC        int
	YBeg, YEnd int

	Weight []float32
	Bias   []float32
	Params []float32
	Act    activation.Fn

	First, Last bool
	Residual    []float32
}

// Func runs a stage kernel over a tile.
type Func func(t *Tile)
