package kernels

import (
	"fmt"
	"sort"

	"github.com/born-ml/mergeconv/internal/arch"
	"github.com/born-ml/mergeconv/internal/conv"
)

// Stage is the role a kernel plays in the fused pipeline.
type Stage int

// Pipeline stages.
const (
	StageInput Stage = iota
	StageDepthwise
	StageOutput
)

func (s Stage) String() string {
	switch s {
	case StageInput:
		return "input"
	case StageDepthwise:
		return "depthwise"
	case StageOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Spec is a kernel specialization.
type Spec int

// Specializations, from least to most specific.
const (
	SpecGeneric Spec = iota
	SpecPointwise
	Spec3x3
)

func (s Spec) String() string {
	switch s {
	case SpecGeneric:
		return "generic"
	case SpecPointwise:
		return "1x1"
	case Spec3x3:
		return "3x3"
	default:
		return "unknown"
	}
}

// Key identifies a registered kernel.
type Key struct {
	Tier  arch.Tier
	Stage Stage
	Spec  Spec
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Tier, k.Stage, k.Spec)
}

// Factory builds a kernel for the given lane width.
type Factory func(lanes int) Func

// Kernel is a kernel resolved for one engine.
type Kernel struct {
	Run Func
	// Key names the registration that provided the kernel; its tier may be a
	// fallback of the requested one.
	Key Key
}

// Registry maps capability keys to kernel factories. A tier without its own
// registration for a key inherits the one of its fallback tier.
type Registry struct {
	factories map[Key]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Key]Factory)}
}

// Register adds or replaces the factory for k.
func (r *Registry) Register(k Key, f Factory) {
	r.factories[k] = f
}

// Lookup walks tier's fallback chain and returns the first factory registered
// for stage and spec, together with the key it was registered under.
func (r *Registry) Lookup(tier arch.Tier, stage Stage, spec Spec) (Factory, Key, bool) {
	for _, t := range tier.Chain() {
		k := Key{Tier: t, Stage: stage, Spec: spec}
		if f, ok := r.factories[k]; ok {
			return f, k, true
		}
	}
	return nil, Key{}, false
}

// Select resolves the most specific kernel that can run p as stage on tier.
// The kernel always runs at tier's lane width, including inherited ones.
func (r *Registry) Select(tier arch.Tier, stage Stage, p *conv.Param) Kernel {
	for _, spec := range Specs(stage, p) {
		if f, k, ok := r.Lookup(tier, stage, spec); ok {
			return Kernel{Run: f(tier.Lanes()), Key: k}
		}
	}
	panic(fmt.Sprintf("kernels: no %s kernel for tier %s", stage, tier))
}

// Keys returns the registered keys in tier, stage, spec order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		return a.Spec < b.Spec
	})
	return keys
}

// Specs returns the specializations able to run p as stage, most specific first.
func Specs(stage Stage, p *conv.Param) []Spec {
	switch stage {
	case StageInput:
		if p.Is1x1() {
			return []Spec{SpecPointwise, SpecGeneric}
		}
	case StageDepthwise:
		if supports3x3(p) {
			return []Spec{Spec3x3, SpecGeneric}
		}
	}
	return []Spec{SpecGeneric}
}

func supports3x3(p *conv.Param) bool {
	return p.IsKernel(3) &&
		p.StrideY <= 2 && p.StrideX <= 2 &&
		p.PadY <= 1 && p.PadX <= 1 && p.PadH <= 1 && p.PadW <= 1 &&
		p.SrcH >= 2 && p.SrcW >= 2
}

var defaultRegistry = newDefault()

// Default returns the registry holding every built-in kernel. It is fully
// populated at package initialization and must not be modified.
func Default() *Registry {
	return defaultRegistry
}

func newDefault() *Registry {
	r := NewRegistry()

	// Scalar generics back every tier.
	r.Register(Key{arch.Scalar, StageInput, SpecGeneric}, inputFactory(6))
	r.Register(Key{arch.Scalar, StageDepthwise, SpecGeneric}, newDepthwise)
	r.Register(Key{arch.Scalar, StageOutput, SpecGeneric}, newOutput)

	for _, t := range []arch.Tier{arch.SSE41, arch.NEON} {
		r.Register(Key{t, StageInput, SpecPointwise}, pointwiseFactory(6))
		r.Register(Key{t, StageDepthwise, Spec3x3}, depthwise3x3Factory(4))
	}

	r.Register(Key{arch.AVX2, StageDepthwise, Spec3x3}, depthwise3x3Factory(8))

	r.Register(Key{arch.AVX512, StageInput, SpecGeneric}, inputFactory(maxTile))
	r.Register(Key{arch.AVX512, StageInput, SpecPointwise}, pointwiseFactory(maxTile))

	return r
}
