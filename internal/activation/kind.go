// Package activation holds the elementwise activations a convolution stage can
// fuse into its store.
package activation

import "fmt"

// Kind selects the activation applied after a stage's bias add.
type Kind int

// Supported activation kinds.
const (
	Identity Kind = iota
	Relu
	LeakyRelu
	RestrictRange
	Prelu
	Elu
	Hswish
	Mish
	HardSigmoid
	Swish
	Gelu
)

// Kinds lists every supported activation kind.
func Kinds() []Kind {
	return []Kind{Identity, Relu, LeakyRelu, RestrictRange, Prelu, Elu, Hswish, Mish, HardSigmoid, Swish, Gelu}
}

// String returns a human-readable name for the activation kind.
func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case Relu:
		return "relu"
	case LeakyRelu:
		return "leakyRelu"
	case RestrictRange:
		return "restrictRange"
	case Prelu:
		return "prelu"
	case Elu:
		return "elu"
	case Hswish:
		return "hswish"
	case Mish:
		return "mish"
	case HardSigmoid:
		return "hardSigmoid"
	case Swish:
		return "swish"
	case Gelu:
		return "gelu"
	default:
		return "unknown"
	}
}

// Valid reports whether k names a supported activation.
func (k Kind) Valid() bool {
	return k >= Identity && k <= Gelu
}

// PerChannel reports whether the parameters hold one value per output channel.
func (k Kind) PerChannel() bool {
	return k == Prelu
}

// ParamCount returns the number of scalar parameters the activation reads.
// Per-channel kinds return 0; their parameter count equals the channel count.
func (k Kind) ParamCount() int {
	switch k {
	case LeakyRelu, Elu, Mish, Swish:
		return 1
	case RestrictRange, Hswish, HardSigmoid:
		return 2
	default:
		return 0
	}
}

// Defaults returns the conventional parameters of k, or nil when k takes none.
func (k Kind) Defaults() []float32 {
	switch k {
	case LeakyRelu:
		return []float32{0.01}
	case RestrictRange:
		return []float32{0, 6}
	case Elu:
		return []float32{1}
	case Hswish:
		return []float32{3, 1.0 / 6}
	case Mish:
		return []float32{20}
	case HardSigmoid:
		return []float32{1.0 / 6, 0.5}
	case Swish:
		return []float32{1}
	default:
		return nil
	}
}

// Parse returns the kind whose String is name.
func Parse(name string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == name {
			return k, nil
		}
	}
	return Identity, fmt.Errorf("activation: unknown kind %q", name)
}
