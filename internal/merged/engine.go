package merged

import (
	"fmt"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/arch"
	"github.com/born-ml/mergeconv/internal/conv"
	"github.com/born-ml/mergeconv/internal/kernels"
	"github.com/born-ml/mergeconv/internal/reference"
)

// Engine runs a merged convolution.
//
// An engine is not safe for concurrent use. Clone returns an engine sharing
// the bound weights that can run on another goroutine.
type Engine struct {
	param   Param
	variant Variant
	plan    Plan
	tier    arch.Tier

	input     kernels.Kernel
	depthwise kernels.Kernel
	output    kernels.Kernel

	packed [3]packed
	acts   [3]activation.Fn
	stages [3]reference.Stage
	bound  bool

	buf []float32
}

// New creates an engine for a validated parameter.
func New(p Param, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.cache.Validate(); err != nil {
		return nil, err
	}
	if cfg.blockMajor < 0 {
		return nil, fmt.Errorf("merged: block major must not be negative, got %d", cfg.blockMajor)
	}
	if !cfg.tierSet {
		cfg.tier = arch.Detect()
	}

	e := &Engine{
		param:   p,
		variant: Classify(&p),
		tier:    cfg.tier,
	}
	e.plan = NewPlan(&e.param, e.variant, cfg.tier.Lanes(), cfg.cache, cfg.blockMajor)

	reg := kernels.Default()
	c := &e.param.Conv
	switch e.variant {
	case VariantCdc:
		e.input = reg.Select(e.tier, kernels.StageInput, &c[0])
		e.depthwise = reg.Select(e.tier, kernels.StageDepthwise, &c[1])
		e.output = reg.Select(e.tier, kernels.StageOutput, &c[2])
	case VariantCd:
		e.input = reg.Select(e.tier, kernels.StageInput, &c[0])
		e.depthwise = reg.Select(e.tier, kernels.StageDepthwise, &c[1])
	case VariantDc:
		e.depthwise = reg.Select(e.tier, kernels.StageDepthwise, &c[0])
		e.output = reg.Select(e.tier, kernels.StageOutput, &c[1])
	}
	for i := range e.param.Stages() {
		e.acts[i] = activation.Lookup(c[i].Activation)
	}
	return e, nil
}

// SetParams binds weights, biases and activation parameters of every stage.
//
// weights[i] is laid out [KernelY][KernelX][SrcC/Group][DstC]. biases and
// params may be nil, as may any of their entries. When internal is not nil,
// internal[i] reports whether stage i was copied into engine-owned storage;
// otherwise the engine keeps referencing the caller's slices.
func (e *Engine) SetParams(weights [][]float32, internal []bool, biases, params [][]float32) {
	count := e.param.Count
	if len(weights) < count {
		panic(fmt.Sprintf("merged: SetParams needs %d weight slices, got %d", count, len(weights)))
	}
	at := func(s [][]float32, i int) []float32 {
		if i < len(s) {
			return s[i]
		}
		return nil
	}

	for i := 0; i < count; i++ {
		c := &e.param.Conv[i]
		w, b, prm := weights[i], at(biases, i), at(params, i)
		checkParams(i, c, w, b, prm)

		copied := true
		switch e.role(i) {
		case kernels.StageInput:
			e.packed[i] = reorderInput(c, e.plan.MaC, e.plan.MiC, w, b, prm)
		case kernels.StageDepthwise:
			e.packed[i] = reorderDepthwise(c, e.plan.MaC, e.plan.MiC, w, b, prm)
		case kernels.StageOutput:
			e.packed[i] = reorderOutput(c, e.plan.MaC, e.plan.MiC, w, b, prm)
		default:
			e.stages[i] = reference.Stage{Param: *c, Weight: w, Bias: b, Params: prm}
			copied = false
		}
		if i < len(internal) {
			internal[i] = copied
		}
	}
	e.bound = true
}

func checkParams(i int, c *conv.Param, w, b, prm []float32) {
	if len(w) < c.SizeW() {
		panic(fmt.Sprintf("merged: stage %d weight has %d elements, need %d", i, len(w), c.SizeW()))
	}
	if b != nil && len(b) < c.DstC {
		panic(fmt.Sprintf("merged: stage %d bias has %d elements, need %d", i, len(b), c.DstC))
	}
	if c.Activation.PerChannel() && len(prm) < c.DstC {
		panic(fmt.Sprintf("merged: stage %d %s needs %d parameters, got %d", i, c.Activation, c.DstC, len(prm)))
	}
}

// role returns the kernel stage that runs conv i, or -1 on the generic path.
func (e *Engine) role(i int) kernels.Stage {
	switch e.variant {
	case VariantCdc, VariantCd:
		return kernels.Stage(i)
	case VariantDc:
		return kernels.Stage(i + 1)
	default:
		return -1
	}
}

// Forward runs the batch from src into dst.
//
// buf is scratch of at least ExternalBufferSize floats; with a nil buf the
// engine allocates and keeps its own.
func (e *Engine) Forward(src, buf, dst []float32) {
	e.forward(src, buf, dst, 0, e.param.Batch)
}

func (e *Engine) forward(src, buf, dst []float32, beg, end int) {
	if !e.bound {
		panic("merged: Forward called before SetParams")
	}
	srcShape, dstShape := e.param.Src().SrcShape(end), e.param.Dst().DstShape(end)
	if len(src) < srcShape.NumElements() {
		panic(fmt.Sprintf("merged: src has %d elements, need %d for %v", len(src), srcShape.NumElements(), srcShape))
	}
	if len(dst) < dstShape.NumElements() {
		panic(fmt.Sprintf("merged: dst has %d elements, need %d for %v", len(dst), dstShape.NumElements(), dstShape))
	}
	sizeS, sizeD := srcShape.ItemSize(), dstShape.ItemSize()
	buf = e.scratch(buf)

	for b := beg; b < end; b++ {
		s := src[b*sizeS : (b+1)*sizeS]
		d := dst[b*sizeD : (b+1)*sizeD]
		switch e.variant {
		case VariantCdc:
			e.forwardCdc(s, buf, d)
		case VariantCd:
			e.forwardCd(s, buf, d)
		case VariantDc:
			e.forwardDc(s, buf, d)
		default:
			e.forwardGeneric(s, buf, d)
		}
	}
}

func (e *Engine) scratch(buf []float32) []float32 {
	need := e.ExternalBufferSize()
	if buf == nil {
		if len(e.buf) < need {
			e.buf = make([]float32, need)
		}
		return e.buf
	}
	if len(buf) < need {
		panic(fmt.Sprintf("merged: buffer has %d elements, need %d", len(buf), need))
	}
	return buf
}

// ExternalBufferSize returns the scratch floats Forward needs.
func (e *Engine) ExternalBufferSize() int {
	if e.variant != VariantGeneric {
		return e.plan.BufferSize()
	}
	size := e.param.Conv[0].SizeD()
	if e.param.Count == 3 {
		size += e.param.Conv[1].SizeD()
	}
	return size
}

// InternalBufferSize returns the floats the engine owns: its scratch and the
// reordered parameters.
func (e *Engine) InternalBufferSize() int {
	size := len(e.buf)
	for i := range e.packed {
		size += e.packed[i].size()
	}
	return size
}

// Clone returns an engine sharing the bound parameters with its own scratch.
func (e *Engine) Clone() *Engine {
	c := *e
	c.buf = nil
	return &c
}

// Param returns the merged parameter.
func (e *Engine) Param() Param { return e.param }

// Variant returns the variant the engine runs.
func (e *Engine) Variant() Variant { return e.variant }

// Plan returns the tiling plan.
func (e *Engine) Plan() Plan { return e.plan }

// Tier returns the tier the kernels were selected for.
func (e *Engine) Tier() arch.Tier { return e.tier }

// Kernels returns the registry keys of the selected stage kernels, in
// pipeline order. The generic variant returns none.
func (e *Engine) Kernels() []kernels.Key {
	var keys []kernels.Key
	for _, k := range []kernels.Kernel{e.input, e.depthwise, e.output} {
		if k.Run != nil {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// Info describes the engine as variant-tier followed by the parameter.
func (e *Engine) Info() string {
	return fmt.Sprintf("%s-%s %s", e.variant, e.tier, &e.param)
}
