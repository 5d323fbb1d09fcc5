package kernels

import (
	"fmt"

	"github.com/born-ml/mergeconv/internal/conv"
)

// inputKernel is the expanding convolution. It reads an NHWC image and writes
// pairs of F-channel blocks into a ring buffer, tile pixels at a time.
//
// Weights of one output pair are laid out [KernelY*KernelX*SrcC][2F].
type inputKernel struct {
	lanes int
	tile  int
}

func checkLanes(lanes int) {
	if lanes < 1 || lanes > maxLanes {
		panic(fmt.Sprintf("kernels: lane width %d out of range [1, %d]", lanes, maxLanes))
	}
}

func inputFactory(tile int) Factory {
	return func(lanes int) Func {
		checkLanes(lanes)
		k := inputKernel{lanes: lanes, tile: tile}
		return k.direct
	}
}

func pointwiseFactory(tile int) Factory {
	return func(lanes int) Func {
		checkLanes(lanes)
		k := inputKernel{lanes: lanes, tile: tile}
		return k.pointwise
	}
}

// direct handles any kernel size, stride and padding. Output columns whose
// taps are all inside the source go through the multi-pixel body; the padded
// nose and tail columns are computed one pixel at a time.
func (k inputKernel) direct(t *Tile) {
	p := t.Param
	df := 2 * k.lanes
	span := p.KernelY * p.KernelX * p.SrcC
	rowSpan := p.KernelX * p.SrcC
	noseW, bodyW := p.NoseW(), p.BodyW()
	src := t.Src.Data

	var acc [maxTile * 2 * maxLanes]float32
	var base [maxTile]int

	for dc := 0; dc < t.MaC; dc += df {
		w := t.Weight[dc*span:]
		for dy := t.YBeg; dy < t.YEnd; dy++ {
			sy := dy*p.StrideY - p.PadY
			kyBeg, kyEnd := max(0, -sy), min(p.KernelY, p.SrcH-sy)

			dx := 0
			for ; dx < noseW; dx++ {
				k.edge(t, acc[:df], dc, dy, dx, kyBeg, kyEnd)
			}
			for dx < bodyW {
				m := min(k.tile, bodyW-dx)
				k.init(t, acc[:m*df], m, dc)
				for ky := kyBeg; ky < kyEnd; ky++ {
					for j := 0; j < m; j++ {
						base[j] = ((sy+ky)*p.SrcW + (dx+j)*p.StrideX - p.PadX) * p.SrcC
					}
					accumulate(acc[:m*df], src, base[:m], w[ky*rowSpan*df:], rowSpan, df)
				}
				k.store(t, acc[:m*df], m, dc, dy, dx)
				dx += m
			}
			for ; dx < p.DstW; dx++ {
				k.edge(t, acc[:df], dc, dy, dx, kyBeg, kyEnd)
			}
		}
	}
}

// edge computes one output pixel, skipping taps that fall into padding.
func (k inputKernel) edge(t *Tile, acc []float32, dc, dy, dx, kyBeg, kyEnd int) {
	p := t.Param
	df := 2 * k.lanes
	sy := dy*p.StrideY - p.PadY
	sx := dx*p.StrideX - p.PadX
	kxBeg, kxEnd := max(0, -sx), min(p.KernelX, p.SrcW-sx)
	w := t.Weight[dc*p.KernelY*p.KernelX*p.SrcC:]

	k.init(t, acc, 1, dc)
	if kxEnd > kxBeg {
		var base [1]int
		n := (kxEnd - kxBeg) * p.SrcC
		for ky := kyBeg; ky < kyEnd; ky++ {
			base[0] = ((sy+ky)*p.SrcW + sx + kxBeg) * p.SrcC
			accumulate(acc, t.Src.Data, base[:], w[(ky*p.KernelX+kxBeg)*p.SrcC*df:], n, df)
		}
	}
	k.store(t, acc, 1, dc, dy, dx)
}

// pointwise handles 1x1 unit-stride kernels. The rows of a tile are one
// contiguous run of pixels, multiplied by the [SrcC][2F] weight panel.
func (k inputKernel) pointwise(t *Tile) {
	p := t.Param
	df := 2 * k.lanes
	beg, end := t.YBeg*p.SrcW, t.YEnd*p.SrcW

	var acc [maxTile * 2 * maxLanes]float32
	var base [maxTile]int

	for dc := 0; dc < t.MaC; dc += df {
		w := t.Weight[dc*p.SrcC:]
		for pix := beg; pix < end; {
			m := min(k.tile, end-pix)
			for j := 0; j < m; j++ {
				base[j] = (pix + j) * p.SrcC
			}
			k.init(t, acc[:m*df], m, dc)
			accumulate(acc[:m*df], t.Src.Data, base[:m], w, p.SrcC, df)

			// A pixel run may wrap rows; store pixel by pixel.
			for j := 0; j < m; j++ {
				y, x := (pix+j)/p.DstW, (pix+j)%p.DstW
				k.store(t, acc[j*df:(j+1)*df], 1, dc, y, x)
			}
			pix += m
		}
	}
}

func (k inputKernel) init(t *Tile, acc []float32, m, dc int) {
	df := 2 * k.lanes
	bias := t.Bias[dc : dc+df]
	for j := 0; j < m; j++ {
		copy(acc[j*df:(j+1)*df], bias)
	}
}

// store applies the activation and writes m pixels starting at (dy, dx).
// Only blocks holding at least one channel of the tile are written.
func (k inputKernel) store(t *Tile, acc []float32, m, dc, dy, dx int) {
	f, df := k.lanes, 2*k.lanes
	blocks := min(2, conv.DivHi(t.MaC-dc, f))
	for j := 0; j < m; j++ {
		a := acc[j*df : (j+1)*df]
		for b := 0; b < blocks; b++ {
			blk := dc/f + b
			out := t.Dst.Data[t.Dst.Offset(blk, dy, dx+j):]
			for i := 0; i < f; i++ {
				out[i] = t.Act(a[b*f+i], t.Params, dc+b*f+i)
			}
		}
	}
}

// accumulate adds n consecutive source values of every pixel to its df
// accumulators. Pixel j reads src[base[j]:]; w holds n rows of df weights.
func accumulate(acc, src []float32, base []int, w []float32, n, df int) {
	for i := 0; i < n; i++ {
		wv := w[i*df : (i+1)*df]
		for j, b := range base {
			s := src[b+i]
			a := acc[j*df : (j+1)*df]
			for l, wl := range wv {
				a[l] += s * wl
			}
		}
	}
}
