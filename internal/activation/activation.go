package activation

import (
	"fmt"
	"math"
)

// Fn applies an activation to v. Scalar kinds read params[0] and params[1];
// per-channel kinds read params[c].
type Fn func(v float32, params []float32, c int) float32

var table = [...]Fn{
	Identity:      identity,
	Relu:          relu,
	LeakyRelu:     leakyRelu,
	RestrictRange: restrictRange,
	Prelu:         prelu,
	Elu:           elu,
	Hswish:        hswish,
	Mish:          mish,
	HardSigmoid:   hardSigmoid,
	Swish:         swish,
	Gelu:          gelu,
}

// Lookup returns the function for k.
func Lookup(k Kind) Fn {
	if !k.Valid() {
		panic(fmt.Sprintf("activation: unknown kind %d", int(k)))
	}
	return table[k]
}

// Apply runs fn over vals in place; vals[i] belongs to channel c0+i.
func Apply(fn Fn, vals, params []float32, c0 int) {
	for i, v := range vals {
		vals[i] = fn(v, params, c0+i)
	}
}

// Scalar returns the parameters as the fixed two-slot form the kernels read,
// filling missing values from k's defaults.
func Scalar(k Kind, params []float32) []float32 {
	out := make([]float32, 2)
	copy(out, k.Defaults())
	copy(out, params)
	return out
}

func identity(v float32, _ []float32, _ int) float32 {
	return v
}

func relu(v float32, _ []float32, _ int) float32 {
	if v > 0 {
		return v
	}
	return 0
}

func leakyRelu(v float32, params []float32, _ int) float32 {
	return max(0, v) + params[0]*min(0, v)
}

func restrictRange(v float32, params []float32, _ int) float32 {
	return min(max(params[0], v), params[1])
}

func prelu(v float32, params []float32, c int) float32 {
	return max(0, v) + params[c]*min(0, v)
}

func elu(v float32, params []float32, _ int) float32 {
	if v >= 0 {
		return v
	}
	return params[0] * float32(math.Expm1(float64(v)))
}

func hswish(v float32, params []float32, _ int) float32 {
	shift, scale := params[0], params[1]
	return max(min(v, shift)+shift, 0) * scale * v
}

func mish(v float32, params []float32, _ int) float32 {
	if v > params[0] {
		return v
	}
	x := float64(v)
	return float32(x * math.Tanh(math.Log1p(math.Exp(x))))
}

func hardSigmoid(v float32, params []float32, _ int) float32 {
	scale, shift := params[0], params[1]
	return max(0, min(scale*v+shift, 1))
}

func swish(v float32, params []float32, _ int) float32 {
	return v / (1 + float32(math.Exp(float64(-params[0]*v))))
}

func gelu(v float32, _ []float32, _ int) float32 {
	x := float64(v)
	return float32(x * 0.5 * (1 + math.Erf(x/math.Sqrt2)))
}
