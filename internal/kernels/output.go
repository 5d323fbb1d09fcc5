package kernels

// outputKernel is the projecting 1x1 convolution. It reads MaC channels of a
// ring buffer and accumulates into the NHWC destination, 2F output channels
// and up to six pixels per pass.
//
// Weights of one output pair are laid out [MaC][2F]; Bias and Params cover
// all destination channels.
type outputKernel struct {
	lanes int
}

func newOutput(lanes int) Func {
	checkLanes(lanes)
	k := outputKernel{lanes: lanes}
	return k.run
}

// passWidth picks how many pixels the next pass covers when rem remain.
func passWidth(rem int) int {
	switch {
	case rem >= 6:
		return 6
	case rem == 4:
		return 4
	case rem >= 3:
		return 3
	default:
		return 1
	}
}

func (k outputKernel) run(t *Tile) {
	p := t.Param
	df := 2 * k.lanes

	var acc [6 * 2 * maxLanes]float32

	for dc := 0; dc < p.DstC; dc += df {
		n := min(df, p.DstC-dc)
		w := t.Weight[dc*t.MaC:]
		for dy := t.YBeg; dy < t.YEnd; dy++ {
			for dx := 0; dx < p.DstW; {
				m := passWidth(p.DstW - dx)
				k.pass(t, acc[:m*df], w, m, n, dc, dy, dx)
				dx += m
			}
		}
	}
}

// pass accumulates m pixels of the output pair starting at channel dc.
// Only the n valid channels of a partial pair are loaded and stored.
func (k outputKernel) pass(t *Tile, acc, w []float32, m, n, dc, dy, dx int) {
	p := t.Param
	f, df := k.lanes, 2*k.lanes
	dst := t.Dst.Data
	offs := (dy*p.DstW+dx)*p.DstC + dc

	for j := 0; j < m; j++ {
		a := acc[j*df : j*df+n]
		if t.First {
			clear(a)
		} else {
			copy(a, dst[offs+j*p.DstC:])
		}
	}

	for c := 0; c < t.MaC; c += f {
		b := c / f
		lanes := min(f, t.MaC-c)
		row := t.Src.Offset(b, dy, dx)
		for i := 0; i < lanes; i++ {
			wv := w[(c+i)*df : (c+i)*df+n]
			for j := 0; j < m; j++ {
				s := t.Src.Data[row+j*t.Src.Pixel+i]
				a := acc[j*df : j*df+n]
				for l, wl := range wv {
					a[l] += s * wl
				}
			}
		}
	}

	for j := 0; j < m; j++ {
		a := acc[j*df : j*df+n]
		out := dst[offs+j*p.DstC : offs+j*p.DstC+n]
		if !t.Last {
			copy(out, a)
			continue
		}
		for l := range out {
			v := t.Act(a[l]+t.Bias[dc+l], t.Params, dc+l)
			if t.Residual != nil {
				v += t.Residual[offs+j*p.DstC+l]
			}
			out[l] = v
		}
	}
}
