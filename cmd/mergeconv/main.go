// Package main provides the mergeconv CLI.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/born-ml/mergeconv/internal/activation"
	"github.com/born-ml/mergeconv/internal/arch"
	"github.com/born-ml/mergeconv/internal/conv"
	"github.com/born-ml/mergeconv/internal/kernels"
	"github.com/born-ml/mergeconv/internal/merged"
	"github.com/born-ml/mergeconv/internal/reference"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("mergeconv %s\n", version)
	case "tiers":
		tiers()
	case "plan":
		plan(os.Args[2:])
	case "check":
		check(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("mergeconv - fused depthwise separable convolution")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  tiers      Show the detected CPU tier and registered kernels")
	fmt.Println("  plan       Show the tiling plan of an inverted residual block")
	fmt.Println("  check      Compare the fused engine against the unfused reference")
}

func tiers() {
	fmt.Printf("Detected tier: %s (%d lanes)\n\n", arch.Detect(), arch.Detect().Lanes())
	fmt.Println("Registered kernels:")
	for _, k := range kernels.Default().Keys() {
		fmt.Printf("  %s\n", k)
	}
}

type blockFlags struct {
	batch, channels, height, width int
	expand, out, kernel, stride    int
	stages, blockMajor             int
	tier, act                      string
}

func parseBlock(name string, args []string) blockFlags {
	var bf blockFlags
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.IntVar(&bf.batch, "batch", 1, "Batch size")
	fs.IntVar(&bf.channels, "c", 32, "Input channels")
	fs.IntVar(&bf.height, "h", 56, "Input height")
	fs.IntVar(&bf.width, "w", 56, "Input width")
	fs.IntVar(&bf.expand, "expand", 192, "Expanded channels")
	fs.IntVar(&bf.out, "out", 32, "Output channels")
	fs.IntVar(&bf.kernel, "k", 3, "Depthwise kernel size")
	fs.IntVar(&bf.stride, "s", 1, "Depthwise stride")
	fs.IntVar(&bf.stages, "stages", 3, "Stage count: 3 (expand, depthwise, project) or 2 (expand, depthwise)")
	fs.StringVar(&bf.tier, "tier", "", "Kernel tier (default: detected)")
	fs.StringVar(&bf.act, "act", "relu", "Activation of the expand and depthwise stages (identity, relu, prelu, ...)")
	fs.IntVar(&bf.blockMajor, "mac", 0, "Channel block size (0 = planned)")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if bf.stages != 2 && bf.stages != 3 {
		log.Fatalf("Stage count must be 2 or 3, got %d", bf.stages)
	}
	return bf
}

func (bf blockFlags) engine() (*merged.Engine, merged.Param) {
	act, err := activation.Parse(bf.act)
	if err != nil {
		log.Fatal(err)
	}

	pad := bf.kernel / 2
	dh := (bf.height+2*pad-bf.kernel)/bf.stride + 1
	dw := (bf.width+2*pad-bf.kernel)/bf.stride + 1
	convs := []conv.Param{
		{SrcC: bf.channels, SrcH: bf.height, SrcW: bf.width, DstC: bf.expand,
			KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1, Activation: act},
		{SrcC: bf.expand, SrcH: bf.height, SrcW: bf.width, DstC: bf.expand,
			KernelY: bf.kernel, KernelX: bf.kernel, StrideY: bf.stride, StrideX: bf.stride,
			PadY: pad, PadX: pad, PadH: pad, PadW: pad, Group: bf.expand, Activation: act},
		{SrcC: bf.expand, SrcH: dh, SrcW: dw, DstC: bf.out,
			KernelY: 1, KernelX: 1, StrideY: 1, StrideX: 1, Group: 1},
	}[:bf.stages]

	p, err := merged.Validate(bf.batch, convs, false, merged.CompatFast)
	if err != nil {
		log.Fatalf("Invalid block: %v", err)
	}

	opts := []merged.Option{merged.WithBlockMajor(bf.blockMajor)}
	if bf.tier != "" {
		tier, err := arch.Parse(bf.tier)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, merged.WithTier(tier))
	}
	e, err := merged.New(p, opts...)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	return e, p
}

func plan(args []string) {
	bf := parseBlock("plan", args)
	e, p := bf.engine()

	fmt.Printf("Engine:  %s\n", e.Info())
	fmt.Printf("Plan:    %s\n", e.Plan())
	fmt.Printf("Scratch: %d floats (%.1f KiB)\n", e.ExternalBufferSize(), float64(e.ExternalBufferSize()*4)/1024)
	fmt.Printf("Flop:    %.2f M\n", float64(p.Flop())/1e6)
	for _, k := range e.Kernels() {
		fmt.Printf("Kernel:  %s\n", k)
	}
}

func check(args []string) {
	bf := parseBlock("check", args)
	e, p := bf.engine()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	stages := bind(r, e, &p)

	src := randSlice(r, p.Batch*p.Src().SizeS(), 1)
	dst := make([]float32, p.Batch*p.Dst().SizeD())

	start := time.Now()
	e.Forward(src, nil, dst)
	fused := time.Since(start)

	start = time.Now()
	want := reference.Chain(p.Batch, stages, p.Add, src)
	unfused := time.Since(start)

	var maxErr float64
	for i := range want {
		diff := math.Abs(float64(want[i]-dst[i])) / math.Max(1, math.Abs(float64(want[i])))
		maxErr = math.Max(maxErr, diff)
	}

	fmt.Printf("Engine:     %s\n", e.Info())
	fmt.Printf("Fused:      %v\n", fused)
	fmt.Printf("Reference:  %v\n", unfused)
	fmt.Printf("Max error:  %.3g\n", maxErr)
	if maxErr > 1e-4 {
		log.Fatalf("Fused output differs from reference")
	}
}

// bind draws random parameters for every stage of p, binds them to e and
// returns them as reference stages.
func bind(r *rand.Rand, e *merged.Engine, p *merged.Param) []reference.Stage {
	stages := make([]reference.Stage, p.Count)
	weights := make([][]float32, p.Count)
	biases := make([][]float32, p.Count)
	params := make([][]float32, p.Count)
	for i, c := range p.Stages() {
		scale := 1 / math.Sqrt(float64(c.KernelY*c.KernelX*c.SrcC/c.Group))
		weights[i] = randSlice(r, c.SizeW(), scale)
		biases[i] = randSlice(r, c.DstC, 0.1)
		if c.Activation.PerChannel() {
			params[i] = randSlice(r, c.DstC, 0.5)
		}
		stages[i] = reference.Stage{Param: c, Weight: weights[i], Bias: biases[i], Params: params[i]}
	}
	e.SetParams(weights, nil, biases, params)
	return stages
}

func randSlice(r *rand.Rand, n int, scale float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((r.Float64()*2 - 1) * scale)
	}
	return out
}
