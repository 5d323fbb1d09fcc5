package arch

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

type features struct {
	sse41, avx2, fma, avx512 bool
	asimd                    bool
}

// Detect returns the widest tier the running CPU supports.
func Detect() Tier {
	return detect(runtime.GOARCH, features{
		sse41:  cpu.X86.HasSSE41,
		avx2:   cpu.X86.HasAVX2,
		fma:    cpu.X86.HasFMA,
		avx512: cpu.X86.HasAVX512F,
		asimd:  cpu.ARM64.HasASIMD,
	})
}

func detect(goarch string, f features) Tier {
	switch goarch {
	case "amd64", "386":
		switch {
		case f.avx512 && f.avx2 && f.fma:
			return AVX512
		case f.avx2 && f.fma:
			return AVX2
		case f.sse41:
			return SSE41
		}
	case "arm64":
		if f.asimd {
			return NEON
		}
	}
	return Scalar
}
