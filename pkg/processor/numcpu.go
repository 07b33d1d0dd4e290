package processor

import "runtime"

func scanNumCPU() *scanInfo {
	max := runtime.NumCPU()
	all := make([]int, max)
	for i := range all {
		all[i] = i
	}

	info := &scanInfo{
		max:       Nr(max),
		possible:  toBitmap(all, max),
		available: toBitmap(all, max),
		online:    toBitmap(all, max),
		descrs:    make(map[Nr]Descr),
	}
	for _, id := range all {
		info.descrs[Nr(id)] = Descr{ID: Nr(id), L1: uint32(id), L2: uint32(id), Pipeline: uint32(id)}
	}
	return info
}
