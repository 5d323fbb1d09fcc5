package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanes(t *testing.T) {
	want := map[Tier]int{Scalar: 1, SSE41: 4, AVX2: 8, AVX512: 16, NEON: 4}
	for tier, lanes := range want {
		assert.Equal(t, lanes, tier.Lanes(), tier.String())
	}
	assert.Panics(t, func() { Tier(9).Lanes() })
}

func TestChain(t *testing.T) {
	assert.Equal(t, []Tier{AVX512, AVX2, SSE41, Scalar}, AVX512.Chain())
	assert.Equal(t, []Tier{NEON, Scalar}, NEON.Chain())
	assert.Equal(t, []Tier{Scalar}, Scalar.Chain())
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		goarch string
		f      features
		want   Tier
	}{
		{"avx512", "amd64", features{sse41: true, avx2: true, fma: true, avx512: true}, AVX512},
		{"avx2", "amd64", features{sse41: true, avx2: true, fma: true}, AVX2},
		{"avx2 without fma", "amd64", features{sse41: true, avx2: true}, SSE41},
		{"sse41", "amd64", features{sse41: true}, SSE41},
		{"baseline amd64", "amd64", features{}, Scalar},
		{"arm64", "arm64", features{asimd: true}, NEON},
		{"wasm", "wasm", features{}, Scalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detect(tt.goarch, tt.f))
		})
	}

	// Whatever the host is, detection lands on a known tier.
	assert.NotEqual(t, "unknown", Detect().String())
}

func TestParse(t *testing.T) {
	for _, tier := range Tiers() {
		got, err := Parse(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	_, err := Parse("mmx")
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	c := DefaultCache()
	require.NoError(t, c.Validate())
	assert.Equal(t, 256*1024, c.L2)
	assert.Equal(t, "L1=32KiB L2=256KiB L3=2048KiB", c.String())
	assert.Error(t, Cache{L1: 1}.Validate())
}
