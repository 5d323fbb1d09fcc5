package merged

import (
	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/conv"
)

// packed holds the reordered parameters of one stage.
//
// Block k of the channel partition starts at weight[k*wStride] and
// bias[k*bStride]; per-channel activation parameters follow the bias layout.
// A bStride of zero means the bias spans all channels.
type packed struct {
	weight, bias, params []float32
	wStride, bStride     int
	perChannel           bool
}

// block returns the parameters of channel block k.
func (pk *packed) block(k int) (w, b, prm []float32) {
	w = pk.weight[k*pk.wStride:]
	b = pk.bias[k*pk.bStride:]
	prm = pk.params
	if pk.perChannel {
		prm = prm[k*pk.bStride:]
	}
	return w, b, prm
}

func (pk *packed) size() int {
	return len(pk.weight) + len(pk.bias) + len(pk.params)
}

// reorderChannels places values[ch] at out[(ch/maC)*stride + ch%maC],
// zero filling the padding. nil values yield zeros.
func reorderChannels(values []float32, channels, maC, stride int) []float32 {
	out := make([]float32, conv.DivHi(channels, maC)*stride)
	if values == nil {
		return out
	}
	for ch := 0; ch < channels; ch++ {
		out[ch/maC*stride+ch%maC] = values[ch]
	}
	return out
}

func unreorderChannels(packed []float32, channels, maC, stride int) []float32 {
	out := make([]float32, channels)
	for ch := range out {
		out[ch] = packed[ch/maC*stride+ch%maC]
	}
	return out
}

func reorderParams(kind activation.Kind, params []float32, channels, maC, stride int) []float32 {
	if kind.PerChannel() {
		return reorderChannels(params, channels, maC, stride)
	}
	return activation.Scalar(kind, params)
}

// reorderInput packs expanding weights [KernelY][KernelX][SrcC][DstC] into
// channel blocks of maC, each split into pairs of F channels laid out
// [KernelY*KernelX*SrcC][2F].
func reorderInput(p *conv.Param, maC, lanes int, weight, bias, params []float32) packed {
	df := 2 * lanes
	span := p.KernelY * p.KernelX * p.SrcC
	stride := conv.AlignHi(maC, df)

	pk := packed{
		weight:     make([]float32, conv.DivHi(p.DstC, maC)*stride*span),
		bias:       reorderChannels(bias, p.DstC, maC, stride),
		params:     reorderParams(p.Activation, params, p.DstC, maC, stride),
		wStride:    stride * span,
		bStride:    stride,
		perChannel: p.Activation.PerChannel(),
	}
	for ch := 0; ch < p.DstC; ch++ {
		k, d := ch/maC, ch%maC
		out := pk.weight[k*pk.wStride+d/df*span*df+d%df:]
		for i := 0; i < span; i++ {
			out[i*df] = weight[i*p.DstC+ch]
		}
	}
	return pk
}

func unreorderInput(p *conv.Param, maC, lanes int, pk *packed) []float32 {
	df := 2 * lanes
	span := p.KernelY * p.KernelX * p.SrcC
	weight := make([]float32, p.SizeW())
	for ch := 0; ch < p.DstC; ch++ {
		k, d := ch/maC, ch%maC
		in := pk.weight[k*pk.wStride+d/df*span*df+d%df:]
		for i := 0; i < span; i++ {
			weight[i*p.DstC+ch] = in[i*df]
		}
	}
	return weight
}

// reorderDepthwise packs depthwise weights [KernelY][KernelX][C] into blocks
// of F channels laid out [KernelY*KernelX][F]. Channel blocks of maC start
// at multiples of maC channels, so maC must be a multiple of F.
func reorderDepthwise(p *conv.Param, maC, lanes int, weight, bias, params []float32) packed {
	taps := p.KernelY * p.KernelX
	pk := packed{
		weight:     make([]float32, conv.AlignHi(p.DstC, lanes)*taps),
		bias:       reorderChannels(bias, p.DstC, maC, maC),
		params:     reorderParams(p.Activation, params, p.DstC, maC, maC),
		wStride:    maC * taps,
		bStride:    maC,
		perChannel: p.Activation.PerChannel(),
	}
	for ch := 0; ch < p.DstC; ch++ {
		b, l := ch/lanes, ch%lanes
		for t := 0; t < taps; t++ {
			pk.weight[(b*taps+t)*lanes+l] = weight[t*p.DstC+ch]
		}
	}
	return pk
}

func unreorderDepthwise(p *conv.Param, lanes int, pk *packed) []float32 {
	taps := p.KernelY * p.KernelX
	weight := make([]float32, taps*p.DstC)
	for ch := 0; ch < p.DstC; ch++ {
		b, l := ch/lanes, ch%lanes
		for t := 0; t < taps; t++ {
			weight[t*p.DstC+ch] = pk.weight[(b*taps+t)*lanes+l]
		}
	}
	return weight
}

// reorderOutput packs projecting weights [SrcC][DstC] into blocks of maC
// source channels. Within a block of n channels every pair of F output
// channels is laid out [n][2F]. Bias and parameters span all outputs.
func reorderOutput(p *conv.Param, maC, lanes int, weight, bias, params []float32) packed {
	df := 2 * lanes
	dstPad := conv.AlignHi(p.DstC, df)
	pk := packed{
		weight:     make([]float32, conv.DivHi(p.SrcC, maC)*maC*dstPad),
		bias:       reorderChannels(bias, p.DstC, p.DstC, dstPad),
		params:     reorderParams(p.Activation, params, p.DstC, p.DstC, dstPad),
		wStride:    maC * dstPad,
		perChannel: p.Activation.PerChannel(),
	}
	for sc := 0; sc < p.SrcC; sc++ {
		k, r := sc/maC, sc%maC
		n := min(maC, p.SrcC-k*maC)
		out := pk.weight[k*pk.wStride:]
		for dc := 0; dc < p.DstC; dc++ {
			out[dc/df*n*df+r*df+dc%df] = weight[sc*p.DstC+dc]
		}
	}
	return pk
}

func unreorderOutput(p *conv.Param, maC, lanes int, pk *packed) []float32 {
	df := 2 * lanes
	weight := make([]float32, p.SrcC*p.DstC)
	for sc := 0; sc < p.SrcC; sc++ {
		k, r := sc/maC, sc%maC
		n := min(maC, p.SrcC-k*maC)
		in := pk.weight[k*pk.wStride:]
		for dc := 0; dc < p.DstC; dc++ {
			weight[sc*p.DstC+dc] = in[dc/df*n*df+r*df+dc%df]
		}
	}
	return weight
}
