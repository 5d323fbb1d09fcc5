// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package mergeconv runs fused depthwise separable convolutions on NHWC
// float32 tensors.
//
// # Overview
//
// A MobileNet style block (1x1 expand, depthwise spatial filter, 1x1
// project) normally materializes two full intermediate tensors. This
// package streams the block instead:
//   - Channels are processed in blocks sized to keep weights in cache
//   - Rows flow through two small ring buffers sized to fit in L2
//   - Kernels are picked once per engine for the CPU's vector width
//   - Pure Go implementation (no CGO)
//
// Two-stage blocks (expand then depthwise, or depthwise then project) are
// fused the same way. Any other stage combination runs unfused.
//
// # Basic Usage
//
//	convs := []mergeconv.Conv{
//	    {SrcC: 16, SrcH: 56, SrcW: 56, DstC: 96, KernelY: 1, KernelX: 1,
//	        StrideY: 1, StrideX: 1, Group: 1, Activation: mergeconv.Relu},
//	    {SrcC: 96, SrcH: 56, SrcW: 56, DstC: 96, KernelY: 3, KernelX: 3,
//	        StrideY: 1, StrideX: 1, PadY: 1, PadX: 1, PadH: 1, PadW: 1,
//	        Group: 96, Activation: mergeconv.Relu},
//	    {SrcC: 96, SrcH: 56, SrcW: 56, DstC: 16, KernelY: 1, KernelX: 1,
//	        StrideY: 1, StrideX: 1, Group: 1},
//	}
//	engine, err := mergeconv.Init(1, convs, true, mergeconv.CompatFast)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine.SetParams(weights, nil, biases, nil)
//	engine.Forward(src, nil, dst)
//
// Weights of every stage are laid out [KernelY][KernelX][SrcC/Group][DstC].
//
// # Thread Safety
//
// An Engine is not safe for concurrent use. Use Clone or NewReplicas to run
// the same bound weights on several goroutines.
package mergeconv
