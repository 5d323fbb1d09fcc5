package merged

import "github.com/born-ml/mergeconv/internal/arch"

type config struct {
	tier       arch.Tier
	tierSet    bool
	cache      arch.Cache
	blockMajor int
}

func defaultConfig() config {
	return config{cache: arch.DefaultCache()}
}

// Option configures an Engine.
type Option func(*config)

// WithTier runs the kernels of t instead of the detected tier. Any tier can
// be forced; lanes narrower or wider than the CPU's vectors only change
// performance.
func WithTier(t arch.Tier) Option {
	return func(c *config) {
		c.tier = t
		c.tierSet = true
	}
}

// WithCache sets the cache sizes the tiling plan budgets against.
func WithCache(cache arch.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithBlockMajor fixes the channel block size, rounded up to a multiple of
// the lane width.
func WithBlockMajor(n int) Option {
	return func(c *config) {
		c.blockMajor = n
	}
}
