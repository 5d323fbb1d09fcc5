package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  int
	}{
		{"empty", Shape{}, 1},
		{"single image", NHWC(1, 8, 8, 16), 1024},
		{"batch", NHWC(2, 3, 4, 5), 120},
		{"zero height", NHWC(2, 0, 4, 5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.shape.NumElements())
		})
	}
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, NHWC(1, 8, 8, 16).Validate())

	err := NHWC(1, 0, 8, 16).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1 of 1x0x8x16")

	assert.Error(t, NHWC(1, 8, -1, 16).Validate())
	assert.Error(t, NHWC(1, 8, 8, 0).Validate())
}

func TestShapeItemSize(t *testing.T) {
	s := NHWC(2, 3, 4, 5)
	assert.Equal(t, 60, s.ItemSize())
	assert.Equal(t, s.NumElements(), s[AxisN]*s.ItemSize())
	assert.Equal(t, "2x3x4x5", s.String())

	assert.Panics(t, func() { _ = Shape{3, 4}.ItemSize() })
}
