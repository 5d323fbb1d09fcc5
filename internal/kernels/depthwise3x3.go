package kernels

// depthwise3x3 is the depthwise kernel for 3x3 filters with stride 1 or 2
// and at most one pixel of padding per side. Every pixel uses one of four
// unrolled tap sets: the full 3x3 window inside the image, or the 2x3, 3x2
// and 2x2 windows left at the padded border. Inner rows at stride 1 slide a
// window of adjacent outputs over shared source columns.
type depthwise3x3 struct {
	lanes  int
	window int
}

func depthwise3x3Factory(window int) Factory {
	return func(lanes int) Func {
		checkLanes(lanes)
		k := depthwise3x3{lanes: lanes, window: window}
		return k.run
	}
}

func (k depthwise3x3) run(t *Tile) {
	p := t.Param
	f := k.lanes
	noseW, bodyW := p.NoseW(), p.BodyW()
	slide := p.StrideX == 1 && k.window > 1

	var sum [8 * maxLanes]float32

	for c := 0; c < t.MaC; c += f {
		b := c / f
		n := min(f, t.MaC-c)
		w := t.Weight[b*9*f:]

		for dy := t.YBeg; dy < t.YEnd; dy++ {
			sy := dy*p.StrideY - p.PadY
			ky0, ky1 := 0, 3
			if sy < 0 {
				ky0 = 1
			} else if sy+2 >= p.SrcH {
				ky1 = 2
			}

			dx := 0
			for ; dx < noseW; dx++ {
				k.pixel(t, sum[:f], w, b, c, n, dy, dx, ky0, ky1)
			}
			if slide && ky0 == 0 && ky1 == 3 {
				for dx < bodyW {
					m := min(k.window, bodyW-dx)
					k.slide(t, sum[:m*f], w, b, c, n, m, dy, dx)
					dx += m
				}
			}
			for ; dx < p.DstW; dx++ {
				k.pixel(t, sum[:f], w, b, c, n, dy, dx, ky0, ky1)
			}
		}
	}
}

// pixel computes one output with the tap set selected by its position.
func (k depthwise3x3) pixel(t *Tile, sum, w []float32, b, c, n, dy, dx, ky0, ky1 int) {
	p := t.Param
	f := k.lanes
	sy := dy*p.StrideY - p.PadY
	sx := dx*p.StrideX - p.PadX
	kx0, kx1 := 0, 3
	if sx < 0 {
		kx0 = 1
	} else if sx+2 >= p.SrcW {
		kx1 = 2
	}

	var rows, ws [3][]float32
	for r := 0; r < ky1-ky0; r++ {
		rows[r] = t.Src.Data[t.Src.Offset(b, sy+ky0+r, sx+kx0):]
		ws[r] = w[((ky0+r)*3+kx0)*f:]
	}

	bias := t.Bias[c : c+n]
	px := t.Src.Pixel
	switch {
	case ky1-ky0 == 3 && kx1-kx0 == 3:
		main3x3(sum, bias, &rows, &ws, px, f)
	case ky1-ky0 == 2 && kx1-kx0 == 3:
		edge2x3(sum, bias, &rows, &ws, px, f)
	case ky1-ky0 == 3:
		edge3x2(sum, bias, &rows, &ws, px, f)
	default:
		edge2x2(sum, bias, &rows, &ws, px, f)
	}
	storeBlock(t, sum, f, 1, b, c, n, dy, dx)
}

// slide computes m adjacent inner outputs at stride 1. Source column j of
// each row feeds outputs j-2 through j, so it is read once.
func (k depthwise3x3) slide(t *Tile, sum, w []float32, b, c, n, m, dy, dx int) {
	p := t.Param
	f := k.lanes
	for j := 0; j < m; j++ {
		copy(sum[j*f:j*f+n], t.Bias[c:c+n])
	}
	sy := dy*p.StrideY - p.PadY
	sx := dx - p.PadX
	for r := 0; r < 3; r++ {
		row := t.Src.Offset(b, sy+r, sx)
		for j := 0; j < m+2; j++ {
			s := t.Src.Data[row+j*t.Src.Pixel:]
			for o := max(0, j-2); o <= min(m-1, j); o++ {
				wv := w[(r*3+j-o)*f:]
				acc := sum[o*f:]
				for i := 0; i < n; i++ {
					acc[i] += s[i] * wv[i]
				}
			}
		}
	}
	storeBlock(t, sum, f, m, b, c, n, dy, dx)
}

func main3x3(sum, bias []float32, r, w *[3][]float32, px, f int) {
	r0, r1, r2 := r[0], r[1], r[2]
	w0, w1, w2 := w[0], w[1], w[2]
	for i, v := range bias {
		sum[i] = v +
			r0[i]*w0[i] + r0[px+i]*w0[f+i] + r0[2*px+i]*w0[2*f+i] +
			r1[i]*w1[i] + r1[px+i]*w1[f+i] + r1[2*px+i]*w1[2*f+i] +
			r2[i]*w2[i] + r2[px+i]*w2[f+i] + r2[2*px+i]*w2[2*f+i]
	}
}

func edge2x3(sum, bias []float32, r, w *[3][]float32, px, f int) {
	r0, r1 := r[0], r[1]
	w0, w1 := w[0], w[1]
	for i, v := range bias {
		sum[i] = v +
			r0[i]*w0[i] + r0[px+i]*w0[f+i] + r0[2*px+i]*w0[2*f+i] +
			r1[i]*w1[i] + r1[px+i]*w1[f+i] + r1[2*px+i]*w1[2*f+i]
	}
}

func edge3x2(sum, bias []float32, r, w *[3][]float32, px, f int) {
	r0, r1, r2 := r[0], r[1], r[2]
	w0, w1, w2 := w[0], w[1], w[2]
	for i, v := range bias {
		sum[i] = v +
			r0[i]*w0[i] + r0[px+i]*w0[f+i] +
			r1[i]*w1[i] + r1[px+i]*w1[f+i] +
			r2[i]*w2[i] + r2[px+i]*w2[f+i]
	}
}

func edge2x2(sum, bias []float32, r, w *[3][]float32, px, f int) {
	r0, r1 := r[0], r[1]
	w0, w1 := w[0], w[1]
	for i, v := range bias {
		sum[i] = v +
			r0[i]*w0[i] + r0[px+i]*w0[f+i] +
			r1[i]*w1[i] + r1[px+i]*w1[f+i]
	}
}
