// Package reference implements unfused NHWC convolutions. It backs the
// generic engine variant and serves as the oracle the fused kernels are
// tested against.
package reference

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
)

// Convolution computes one stage for a single NHWC image.
//
// src holds p.SizeS() elements, dst receives p.SizeD() elements. weight is
// laid out [KernelY][KernelX][SrcC/Group][DstC]. bias may be nil. params are
// the activation parameters (one per channel for per-channel kinds).
//
// Algorithm: Im2col
//  1. Transform each group's input patches into rows of a column matrix
//  2. Multiply by the group's weight columns with blas32.Gemm
//  3. Add bias and apply the activation in place
//
// Depthwise stages skip im2col and accumulate taps directly.
func Convolution(p *conv.Param, src, weight, bias, params, dst []float32) {
	if len(src) < p.SizeS() {
		panic(fmt.Sprintf("reference: src has %d elements, need %d", len(src), p.SizeS()))
	}
	if len(dst) < p.SizeD() {
		panic(fmt.Sprintf("reference: dst has %d elements, need %d", len(dst), p.SizeD()))
	}
	if len(weight) < p.SizeW() {
		panic(fmt.Sprintf("reference: weight has %d elements, need %d", len(weight), p.SizeW()))
	}

	switch {
	case p.IsDepthwise():
		depthwise(p, src, weight, dst)
	case p.IsPointwise():
		gemm(p, src, p.SrcC, weight, dst, 0)
	default:
		cpg := p.SrcC / p.Group
		colWidth := p.KernelY * p.KernelX * cpg
		colBuf := make([]float32, p.DstH*p.DstW*colWidth)
		for g := 0; g < p.Group; g++ {
			im2col(p, src, g, colBuf)
			gemm(p, colBuf, colWidth, weight, dst, g)
		}
	}

	finalize(p, bias, params, dst)
}

// gemm multiplies the column matrix of group g by the group's weight columns
// and writes the group's slice of output channels.
func gemm(p *conv.Param, cols []float32, colWidth int, weight, dst []float32, g int) {
	dpg := p.DstC / p.Group
	pixels := p.DstH * p.DstW

	a := blas32.General{Rows: pixels, Cols: colWidth, Stride: colWidth, Data: cols}
	b := blas32.General{Rows: colWidth, Cols: dpg, Stride: p.DstC, Data: weight[g*dpg:]}
	c := blas32.General{Rows: pixels, Cols: dpg, Stride: p.DstC, Data: dst[g*dpg:]}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)
}

// im2col transforms the input channels of group g into colBuf
// [DstH*DstW][KernelY*KernelX*SrcC/Group], zero filling padded taps.
func im2col(p *conv.Param, src []float32, g int, colBuf []float32) {
	cpg := p.SrcC / p.Group
	bufIdx := 0

	for outH := 0; outH < p.DstH; outH++ {
		for outW := 0; outW < p.DstW; outW++ {
			hStart := outH*p.StrideY - p.PadY
			wStart := outW*p.StrideX - p.PadX

			for kh := 0; kh < p.KernelY; kh++ {
				h := hStart + kh
				for kw := 0; kw < p.KernelX; kw++ {
					w := wStart + kw
					row := colBuf[bufIdx : bufIdx+cpg]
					if h >= 0 && h < p.SrcH && w >= 0 && w < p.SrcW {
						offs := (h*p.SrcW+w)*p.SrcC + g*cpg
						copy(row, src[offs:offs+cpg])
					} else {
						clear(row)
					}
					bufIdx += cpg
				}
			}
		}
	}
}

func depthwise(p *conv.Param, src, weight, dst []float32) {
	c := p.DstC
	for dy := 0; dy < p.DstH; dy++ {
		for dx := 0; dx < p.DstW; dx++ {
			out := dst[(dy*p.DstW+dx)*c : (dy*p.DstW+dx+1)*c]
			clear(out)
			for ky := 0; ky < p.KernelY; ky++ {
				sy := dy*p.StrideY + ky - p.PadY
				if sy < 0 || sy >= p.SrcH {
					continue
				}
				for kx := 0; kx < p.KernelX; kx++ {
					sx := dx*p.StrideX + kx - p.PadX
					if sx < 0 || sx >= p.SrcW {
						continue
					}
					s := src[(sy*p.SrcW+sx)*c:]
					w := weight[(ky*p.KernelX+kx)*c:]
					for i := range out {
						out[i] += s[i] * w[i]
					}
				}
			}
		}
	}
}

func finalize(p *conv.Param, bias, params, dst []float32) {
	kind := p.Activation
	fn := activation.Lookup(kind)
	if !kind.PerChannel() {
		params = activation.Scalar(kind, params)
	}

	for offs := 0; offs < p.SizeD(); offs += p.DstC {
		px := dst[offs : offs+p.DstC]
		if bias != nil {
			for c, b := range bias[:p.DstC] {
				px[c] += b
			}
		}
		activation.Apply(fn, px, params, 0)
	}
}
