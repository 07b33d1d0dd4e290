//go:build !linux
// +build !linux

package processor

// scanAffinity falls back to the cpu count of the runtime.
func scanAffinity() *scanInfo {
	return scanNumCPU()
}
