// Package tensor describes the NHWC float32 activation layout shared by the
// convolution stages.
package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape holds the dimensions of an NHWC tensor.
type Shape []int

// NHWC axis positions.
const (
	AxisN = iota
	AxisH
	AxisW
	AxisC
)

// NHWC returns the shape of a batch x height x width x channels tensor.
func NHWC(n, h, w, c int) Shape {
	return Shape{n, h, w, c}
}

// NumElements returns the product of the dimensions.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate reports the first dimension that is not positive.
func (s Shape) Validate() error {
	for i, d := range s {
		if d < 1 {
			return fmt.Errorf("axis %d of %v is %d", i, s, d)
		}
	}
	return nil
}

// ItemSize returns the number of elements in one batch item of an NHWC shape.
func (s Shape) ItemSize() int {
	if len(s) != 4 {
		panic(fmt.Sprintf("tensor: ItemSize expects an NHWC shape, got %v", s))
	}
	return s[AxisH] * s[AxisW] * s[AxisC]
}

// String formats the shape as NxHxWxC.
func (s Shape) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = strconv.Itoa(d)
	}
	return strings.Join(dims, "x")
}
