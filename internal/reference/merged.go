package reference

import (
	"fmt"

	"github.com/born-ml/mergeconv/internal/conv"
)

// Stage bundles a stage descriptor with its bound parameters.
type Stage struct {
	Param  conv.Param
	Weight []float32
	Bias   []float32
	Params []float32
}

// Chain runs stages back to back over batch NHWC items with full
// intermediate tensors. With add set, src is added to the final output.
func Chain(batch int, stages []Stage, add bool, src []float32) []float32 {
	if len(stages) == 0 {
		panic("reference: no stages")
	}
	first, last := &stages[0].Param, &stages[len(stages)-1].Param
	if add && first.SizeS() != last.SizeD() {
		panic(fmt.Sprintf("reference: residual add needs matching shapes, got %d and %d", first.SizeS(), last.SizeD()))
	}

	dst := make([]float32, batch*last.SizeD())
	for b := 0; b < batch; b++ {
		cur := src[b*first.SizeS() : (b+1)*first.SizeS()]
		for i := range stages {
			s := &stages[i]
			out := make([]float32, s.Param.SizeD())
			Convolution(&s.Param, cur, s.Weight, s.Bias, s.Params, out)
			cur = out
		}

		item := dst[b*last.SizeD() : (b+1)*last.SizeD()]
		copy(item, cur)
		if add {
			res := src[b*first.SizeS():]
			for i := range item {
				item[i] += res[i]
			}
		}
	}
	return dst
}
