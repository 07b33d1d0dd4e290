package processor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// scanAffinity builds the processor information from the scheduler
// affinity of the process. Used when sysfs is not mounted.
func scanAffinity() *scanInfo {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return scanNumCPU()
	}

	max := runtime.NumCPU()
	online := make([]int, 0, set.Count())
	for i := 0; i < len(set)*64; i++ {
		if set.IsSet(i) {
			online = append(online, i)
			if i+1 > max {
				max = i + 1
			}
		}
	}

	all := make([]int, max)
	for i := range all {
		all[i] = i
	}
	info := &scanInfo{
		max:       Nr(max),
		possible:  toBitmap(all, max),
		available: toBitmap(all, max),
		online:    toBitmap(online, max),
		descrs:    make(map[Nr]Descr),
	}
	for _, id := range all {
		info.descrs[Nr(id)] = Descr{ID: Nr(id), L1: uint32(id), L2: uint32(id), Pipeline: uint32(id)}
	}
	return info
}
