// Package arch identifies the CPU vector tier the convolution kernels run at
// and the cache sizes the tiling planner budgets against.
package arch

import "fmt"

// Tier is an instruction-set level. Each tier fixes the lane width F of the
// channel blocks its kernels operate on.
type Tier int

// Supported tiers.
const (
	Scalar Tier = iota
	SSE41
	AVX2
	AVX512
	NEON
)

// Tiers lists every tier in registration order.
func Tiers() []Tier {
	return []Tier{Scalar, SSE41, AVX2, AVX512, NEON}
}

// String returns a human-readable name for the tier.
func (t Tier) String() string {
	switch t {
	case Scalar:
		return "scalar"
	case SSE41:
		return "sse41"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	case NEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Lanes returns the number of float32 lanes in one vector of the tier.
func (t Tier) Lanes() int {
	switch t {
	case Scalar:
		return 1
	case SSE41, NEON:
		return 4
	case AVX2:
		return 8
	case AVX512:
		return 16
	default:
		panic(fmt.Sprintf("arch: unknown tier %d", int(t)))
	}
}

// Fallback returns the tier whose kernels t inherits when it registers no
// kernel of its own. The scalar tier has no fallback.
func (t Tier) Fallback() (Tier, bool) {
	switch t {
	case AVX512:
		return AVX2, true
	case AVX2:
		return SSE41, true
	case SSE41, NEON:
		return Scalar, true
	default:
		return Scalar, false
	}
}

// Chain returns t followed by its fallbacks down to the scalar tier.
func (t Tier) Chain() []Tier {
	chain := []Tier{t}
	for cur, ok := t.Fallback(); ok; cur, ok = cur.Fallback() {
		chain = append(chain, cur)
	}
	return chain
}

// Parse returns the tier with the given name.
func Parse(name string) (Tier, error) {
	for _, t := range Tiers() {
		if t.String() == name {
			return t, nil
		}
	}
	return Scalar, fmt.Errorf("arch: unknown tier %q", name)
}
