package merged

import (
	"github.com/born-ml/mergeconv/internal/kernels"
	"github.com/born-ml/mergeconv/internal/reference"
)

// stageRows returns one past the last stage-0 row the depthwise stage reads
// to produce its rows up to yEnd1.
func stageRows(yEnd1, stride, pad, kernel, height int) int {
	return min((yEnd1-1)*stride-pad+kernel, height)
}

// forwardCdc streams one image through expand, depthwise and project.
//
// Channels are processed in blocks of MaC. Within a block every vertical
// step expands just enough rows into ring 0 for the depthwise rows of the
// step, filters them into ring 1 and projects ring 1 into dst. The first
// block sets dst, later blocks accumulate and the last one finalizes.
func (e *Engine) forwardCdc(src, buf, dst []float32) {
	c0, c1, c2 := &e.param.Conv[0], &e.param.Conv[1], &e.param.Conv[2]
	pl := &e.plan
	f := pl.MiC
	channels := c1.DstC
	ring0 := buf[:pl.SizeB[0]]
	ring1 := buf[pl.SizeB[0]:pl.BufferSize()]

	var residual []float32
	if e.param.Add {
		residual = src
	}

	for c := 0; c < channels; c += pl.MaC {
		k := c / pl.MaC
		maC := min(pl.MaC, channels-c)

		t0 := kernels.Tile{
			Param: c0, MaC: maC, Act: e.acts[0],
			Src: kernels.NHWC(src, c0.SrcC, c0.SrcW, f),
			Dst: kernels.Ring(ring0, f, pl.BufH[0], c0.DstW),
		}
		t0.Weight, t0.Bias, t0.Params = e.packed[0].block(k)

		t1 := kernels.Tile{
			Param: c1, MaC: maC, Act: e.acts[1],
			Src: kernels.Ring(ring0, f, pl.BufH[0], c1.SrcW),
			Dst: kernels.Ring(ring1, f, pl.BufH[1], c1.DstW),
		}
		t1.Weight, t1.Bias, t1.Params = e.packed[1].block(k)

		t2 := kernels.Tile{
			Param: c2, MaC: maC, Act: e.acts[2],
			Src:   kernels.Ring(ring1, f, pl.BufH[1], c2.SrcW),
			Dst:   kernels.NHWC(dst, c2.DstC, c2.DstW, f),
			First: c == 0, Last: c+maC == channels,
			Residual: residual,
		}
		t2.Weight, t2.Bias, t2.Params = e.packed[2].block(k)

		yBeg0 := 0
		for yBeg1 := 0; yBeg1 < c1.DstH; {
			yEnd1 := min(yBeg1+pl.YStep[1], c1.DstH)
			yEnd0 := max(yBeg0, stageRows(yEnd1, c1.StrideY, c1.PadY, c1.KernelY, c0.DstH))
			if yEnd0 > yBeg0 {
				t0.YBeg, t0.YEnd = yBeg0, yEnd0
				e.input.Run(&t0)
			}
			t1.YBeg, t1.YEnd = yBeg1, yEnd1
			e.depthwise.Run(&t1)
			t2.YBeg, t2.YEnd = yBeg1, yEnd1
			e.output.Run(&t2)
			yBeg0, yBeg1 = yEnd0, yEnd1
		}
	}
}

// forwardCd streams one image through expand and depthwise, writing each
// channel block of the depthwise output straight into dst.
func (e *Engine) forwardCd(src, buf, dst []float32) {
	c0, c1 := &e.param.Conv[0], &e.param.Conv[1]
	pl := &e.plan
	f := pl.MiC
	channels := c1.DstC
	ring0 := buf[:pl.SizeB[0]]

	for c := 0; c < channels; c += pl.MaC {
		k := c / pl.MaC
		maC := min(pl.MaC, channels-c)

		t0 := kernels.Tile{
			Param: c0, MaC: maC, Act: e.acts[0],
			Src: kernels.NHWC(src, c0.SrcC, c0.SrcW, f),
			Dst: kernels.Ring(ring0, f, pl.BufH[0], c0.DstW),
		}
		t0.Weight, t0.Bias, t0.Params = e.packed[0].block(k)

		t1 := kernels.Tile{
			Param: c1, MaC: maC, Act: e.acts[1],
			Src: kernels.Ring(ring0, f, pl.BufH[0], c1.SrcW),
			Dst: kernels.NHWC(dst[c:], channels, c1.DstW, f),
		}
		t1.Weight, t1.Bias, t1.Params = e.packed[1].block(k)

		yBeg0 := 0
		for yBeg1 := 0; yBeg1 < c1.DstH; {
			yEnd1 := min(yBeg1+pl.YStep[1], c1.DstH)
			yEnd0 := max(yBeg0, stageRows(yEnd1, c1.StrideY, c1.PadY, c1.KernelY, c0.DstH))
			if yEnd0 > yBeg0 {
				t0.YBeg, t0.YEnd = yBeg0, yEnd0
				e.input.Run(&t0)
			}
			t1.YBeg, t1.YEnd = yBeg1, yEnd1
			e.depthwise.Run(&t1)
			yBeg0, yBeg1 = yEnd0, yEnd1
		}
	}
}

// forwardDc filters each channel block of src straight from the image into
// ring 1 and projects it into dst.
func (e *Engine) forwardDc(src, buf, dst []float32) {
	c0, c1 := &e.param.Conv[0], &e.param.Conv[1]
	pl := &e.plan
	f := pl.MiC
	channels := c0.DstC
	ring1 := buf[pl.SizeB[0]:pl.BufferSize()]

	for c := 0; c < channels; c += pl.MaC {
		k := c / pl.MaC
		maC := min(pl.MaC, channels-c)

		t0 := kernels.Tile{
			Param: c0, MaC: maC, Act: e.acts[0],
			Src: kernels.NHWC(src[c:], channels, c0.SrcW, f),
			Dst: kernels.Ring(ring1, f, pl.BufH[1], c0.DstW),
		}
		t0.Weight, t0.Bias, t0.Params = e.packed[0].block(k)

		t1 := kernels.Tile{
			Param: c1, MaC: maC, Act: e.acts[1],
			Src:   kernels.Ring(ring1, f, pl.BufH[1], c1.SrcW),
			Dst:   kernels.NHWC(dst, c1.DstC, c1.DstW, f),
			First: c == 0, Last: c+maC == channels,
		}
		t1.Weight, t1.Bias, t1.Params = e.packed[1].block(k)

		for yBeg := 0; yBeg < c0.DstH; {
			yEnd := min(yBeg+pl.YStep[1], c0.DstH)
			t0.YBeg, t0.YEnd = yBeg, yEnd
			e.depthwise.Run(&t0)
			t1.YBeg, t1.YEnd = yBeg, yEnd
			e.output.Run(&t1)
			yBeg = yEnd
		}
	}
}

// forwardGeneric runs the stages one after another through full
// intermediates in buf.
func (e *Engine) forwardGeneric(src, buf, dst []float32) {
	count := e.param.Count
	cur := src
	offs := 0
	for i := 0; i < count; i++ {
		s := &e.stages[i]
		out := dst
		if i < count-1 {
			size := s.Param.SizeD()
			out = buf[offs : offs+size]
			offs += size
		}
		reference.Convolution(&s.Param, cur, s.Weight, s.Bias, s.Params, out)
		cur = out
	}
	if e.param.Add {
		for i := range dst {
			dst[i] += src[i]
		}
	}
}
