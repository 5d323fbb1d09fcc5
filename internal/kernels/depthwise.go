package kernels

// depthwiseKernel convolves each channel with its own kernel, one block of F
// channels at a time. Weights of a block are laid out [KernelY*KernelX][F].
//
// Source and destination may each be a ring buffer or an NHWC image; only
// the n valid lanes of a partial last block are read and written.
type depthwiseKernel struct {
	lanes int
}

func newDepthwise(lanes int) Func {
	checkLanes(lanes)
	k := depthwiseKernel{lanes: lanes}
	return k.run
}

func (k depthwiseKernel) run(t *Tile) {
	p := t.Param
	f := k.lanes
	taps := p.KernelY * p.KernelX
	noseH, bodyH := p.NoseH(), p.BodyH()
	noseW, bodyW := p.NoseW(), p.BodyW()

	var sum [8 * maxLanes]float32

	for c := 0; c < t.MaC; c += f {
		b := c / f
		n := min(f, t.MaC-c)
		w := t.Weight[b*taps*f:]

		for dy := t.YBeg; dy < t.YEnd; dy++ {
			if dy < noseH || dy >= bodyH {
				for dx := 0; dx < p.DstW; dx++ {
					k.edge(t, sum[:f], w, b, c, n, dy, dx)
				}
				continue
			}

			dx := 0
			for ; dx < noseW; dx++ {
				k.edge(t, sum[:f], w, b, c, n, dy, dx)
			}
			for _, m := range [...]int{8, 4, 2, 1} {
				for ; dx+m <= bodyW; dx += m {
					k.body(t, sum[:m*f], w, b, c, n, m, dy, dx)
				}
			}
			for ; dx < p.DstW; dx++ {
				k.edge(t, sum[:f], w, b, c, n, dy, dx)
			}
		}
	}
}

// edge computes one pixel with bounds checks on every tap.
func (k depthwiseKernel) edge(t *Tile, sum, w []float32, b, c, n, dy, dx int) {
	p := t.Param
	f := k.lanes
	copy(sum[:n], t.Bias[c:c+n])
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
			s := t.Src.Data[t.Src.Offset(b, sy, sx):]
			wv := w[(ky*p.KernelX+kx)*f:]
			for i := 0; i < n; i++ {
				sum[i] += s[i] * wv[i]
			}
		}
	}
	k.store(t, sum, 1, b, c, n, dy, dx)
}

// body computes m adjacent pixels whose taps are all inside the source.
// Each weight vector is loaded once for all m pixels.
func (k depthwiseKernel) body(t *Tile, sum, w []float32, b, c, n, m, dy, dx int) {
	p := t.Param
	f := k.lanes
	for j := 0; j < m; j++ {
		copy(sum[j*f:j*f+n], t.Bias[c:c+n])
	}
	sx0 := dx*p.StrideX - p.PadX
	for ky := 0; ky < p.KernelY; ky++ {
		sy := dy*p.StrideY + ky - p.PadY
		row := t.Src.Offset(b, sy, 0)
		for kx := 0; kx < p.KernelX; kx++ {
			wv := w[(ky*p.KernelX+kx)*f:]
			for j := 0; j < m; j++ {
				s := t.Src.Data[row+(sx0+j*p.StrideX+kx)*t.Src.Pixel:]
				acc := sum[j*f:]
				for i := 0; i < n; i++ {
					acc[i] += s[i] * wv[i]
				}
			}
		}
	}
	k.store(t, sum, m, b, c, n, dy, dx)
}

func (k depthwiseKernel) store(t *Tile, sum []float32, m, b, c, n, dy, dx int) {
	storeBlock(t, sum, k.lanes, m, b, c, n, dy, dx)
}

// storeBlock activates and writes the n valid lanes of m pixels of block b.
// Pixel j's accumulators start at sum[j*f].
func storeBlock(t *Tile, sum []float32, f, m, b, c, n, dy, dx int) {
	for j := 0; j < m; j++ {
		out := t.Dst.Data[t.Dst.Offset(b, dy, dx+j):]
		acc := sum[j*f:]
		for i := 0; i < n; i++ {
			out[i] = t.Act(acc[i], t.Params, c+i)
		}
	}
}
