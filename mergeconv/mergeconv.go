// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package mergeconv

import (
	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/arch"
	"github.com/born-ml/mergeconv/internal/conv"
	"github.com/born-ml/mergeconv/internal/merged"
)

// Engine runs a merged convolution.
type Engine = merged.Engine

// Replicas runs one engine per worker over disjoint batch items.
type Replicas = merged.Replicas

// Conv describes one convolution stage.
type Conv = conv.Param

// Param is a validated merged convolution.
type Param = merged.Param

// Plan is the tiling plan of an engine.
type Plan = merged.Plan

// Variant is the fused schedule an engine runs.
type Variant = merged.Variant

// Fused variants.
const (
	VariantGeneric = merged.VariantGeneric
	VariantCdc     = merged.VariantCdc
	VariantCd      = merged.VariantCd
	VariantDc      = merged.VariantDc
)

// Compatibility selects between speed and cross-CPU reproducibility.
type Compatibility = merged.Compatibility

// Compatibility modes.
const (
	CompatFast  = merged.CompatFast
	CompatExact = merged.CompatExact
)

// Activation selects the activation fused into a stage.
type Activation = activation.Kind

// Activations.
const (
	Identity      = activation.Identity
	Relu          = activation.Relu
	LeakyRelu     = activation.LeakyRelu
	RestrictRange = activation.RestrictRange
	Prelu         = activation.Prelu
	Elu           = activation.Elu
	Hswish        = activation.Hswish
	Mish          = activation.Mish
	HardSigmoid   = activation.HardSigmoid
	Swish         = activation.Swish
	Gelu          = activation.Gelu
)

// Tier is a CPU vector instruction tier.
type Tier = arch.Tier

// Tiers.
const (
	TierScalar = arch.Scalar
	TierSSE41  = arch.SSE41
	TierAVX2   = arch.AVX2
	TierAVX512 = arch.AVX512
	TierNEON   = arch.NEON
)

// Cache holds cache sizes in bytes.
type Cache = arch.Cache

// Option configures an Engine.
type Option = merged.Option

// ErrInvalidShape is returned by Init when a stage has no output.
var ErrInvalidShape = conv.ErrInvalidShape

// Init validates the stages and creates an engine for batch images.
//
// convs holds two or three stages. With add set, the source is added to the
// output of the last stage. The returned engine needs SetParams before
// Forward.
//
// Example:
//
//	engine, err := mergeconv.Init(1, convs, false, mergeconv.CompatFast,
//	    mergeconv.WithTier(mergeconv.TierAVX2))
func Init(batch int, convs []Conv, add bool, compat Compatibility, opts ...Option) (*Engine, error) {
	p, err := merged.Validate(batch, convs, add, compat)
	if err != nil {
		return nil, err
	}
	return merged.New(p, opts...)
}

// NewReplicas clones a bound engine into n engines for parallel batches.
// A count below 1 uses one engine per CPU.
func NewReplicas(e *Engine, n int) *Replicas {
	return merged.NewReplicas(e, n)
}

// DetectTier returns the widest tier the running CPU supports.
func DetectTier() Tier {
	return arch.Detect()
}

// DefaultCache returns the cache sizes assumed when none are given.
func DefaultCache() Cache {
	return arch.DefaultCache()
}

// WithTier runs the kernels of t instead of the detected tier.
func WithTier(t Tier) Option {
	return merged.WithTier(t)
}

// WithCache sets the cache sizes the tiling plan budgets against.
func WithCache(c Cache) Option {
	return merged.WithCache(c)
}

// WithBlockMajor fixes the channel block size.
func WithBlockMajor(n int) Option {
	return merged.WithBlockMajor(n)
}
