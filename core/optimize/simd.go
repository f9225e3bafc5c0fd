package optimize

import "golang.org/x/sys/cpu"

// vectorOK records, once at startup, whether the running CPU has the wide
// compare units (AVX2 on x86_64, Advanced SIMD on ARM64) the wide path
// assumes. ARMv8 makes ASIMD mandatory, so on ARM64 this is effectively
// always true; on x86_64 it depends on the machine.
var vectorOK = cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD

// Router path segments are usually short ("/static/", "/api/"); below
// this length the plain comparison wins before any vector setup pays off.
const shortPathLen = 16

// ComparePathSIMD reports whether two router path segments are equal,
// taking the architecture's wide-compare path for longer segments when
// the CPU supports it.
func ComparePathSIMD(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) < shortPathLen || !vectorOK {
		return a == b
	}
	return pathEqualWide(a, b)
}
