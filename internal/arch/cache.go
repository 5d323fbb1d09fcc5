package arch

import "fmt"

// Cache holds the per-core cache sizes in bytes.
type Cache struct {
	L1 int
	L2 int
	L3 int
}

// DefaultCache returns the sizes the planner assumes when none are given:
// 32 KiB L1, 256 KiB L2 and 2 MiB L3.
func DefaultCache() Cache {
	return Cache{
		L1: 32 * 1024,
		L2: 256 * 1024,
		L3: 2 * 1024 * 1024,
	}
}

// Validate checks that every level is positive.
func (c Cache) Validate() error {
	if c.L1 <= 0 || c.L2 <= 0 || c.L3 <= 0 {
		return fmt.Errorf("arch: cache sizes must be positive, got %s", c)
	}
	return nil
}

func (c Cache) String() string {
	return fmt.Sprintf("L1=%dKiB L2=%dKiB L3=%dKiB", c.L1/1024, c.L2/1024, c.L3/1024)
}
