package processor

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chanyoung/copymachine/pkg/bitmap"
	"github.com/pkg/errors"
)

type scanInfo struct {
	max       Nr
	possible  *bitmap.Bitmap
	available *bitmap.Bitmap
	online    *bitmap.Bitmap
	descrs    map[Nr]Descr
}

// scan reads the linux sysfs cpu directory.
func scan(root string) (*scanInfo, error) {
	possible, err := readList(filepath.Join(root, "possible"))
	if err != nil {
		return nil, err
	}
	max := 0
	if len(possible) > 0 {
		max = possible[len(possible)-1] + 1
	}

	present, err := readList(filepath.Join(root, "present"))
	if err != nil {
		present = possible
	}
	online, err := readList(filepath.Join(root, "online"))
	if err != nil {
		online = present
	}

	info := &scanInfo{
		max:       Nr(max),
		possible:  toBitmap(possible, max),
		available: toBitmap(present, max),
		online:    toBitmap(online, max),
		descrs:    make(map[Nr]Descr),
	}

	hasL3 := false
	for _, id := range present {
		if cacheLevelExists(root, id, 3) {
			hasL3 = true
			break
		}
	}
	for _, id := range present {
		info.descrs[Nr(id)] = describe(root, id, hasL3)
	}

	return info, nil
}

// describe builds the description of the processor; missing sysfs entries
// leave the processor its own numa node zero and private caches.
func describe(root string, id int, hasL3 bool) Descr {
	dir := filepath.Join(root, "cpu"+strconv.Itoa(id))
	d := Descr{
		ID:       Nr(id),
		L1:       uint32(id),
		L2:       uint32(id),
		Pipeline: uint32(id),
	}

	if entries, err := ioutil.ReadDir(dir); err == nil {
		for _, e := range entries {
			if n := strings.TrimPrefix(e.Name(), "node"); n != e.Name() {
				if v, err := strconv.Atoi(n); err == nil {
					d.NumaNode = uint32(v)
				}
			}
		}
	}

	pkg, _ := readUint(filepath.Join(dir, "topology", "physical_package_id"))
	core, _ := readUint(filepath.Join(dir, "topology", "core_id"))
	sharedID := uint32(pkg<<16 | core&0xffff)

	cacheDirs, _ := filepath.Glob(filepath.Join(dir, "cache", "index*"))
	for _, c := range cacheDirs {
		level, err := readUint(filepath.Join(c, "level"))
		if err != nil {
			continue
		}
		typ, _ := readString(filepath.Join(c, "type"))
		size, _ := readSize(filepath.Join(c, "size"))
		shared, _ := readList(filepath.Join(c, "shared_cpu_list"))
		isShared := len(shared) > 1

		switch {
		case level == 1 && typ != "Instruction":
			d.L1Size = size
			if isShared {
				d.L1 = sharedID
			}
		case level == 2:
			d.L2Size = size
			if isShared {
				if hasL3 {
					d.L2 = sharedID
				} else {
					d.L2 = uint32(pkg)
				}
			}
		}
	}

	return d
}

func cacheLevelExists(root string, id, level int) bool {
	dirs, _ := filepath.Glob(filepath.Join(root, "cpu"+strconv.Itoa(id), "cache", "index*"))
	for _, c := range dirs {
		if l, err := readUint(filepath.Join(c, "level")); err == nil && int(l) == level {
			return true
		}
	}
	return false
}

func toBitmap(list []int, nr int) *bitmap.Bitmap {
	b := bitmap.New(nr)
	for _, i := range list {
		b.Set(i, true)
	}
	return b
}

func readString(path string) (string, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 32)
}

// readSize parses cache sizes such as "32K" or "1M".
func readSize(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}

	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad size %q", s)
	}
	return v * mult, nil
}

// readList parses a linux cpu list file, e.g. "0-3,8,10-11".
func readList(path string) ([]int, error) {
	s, err := readString(path)
	if err != nil {
		return nil, err
	}
	return parseList(s)
}

func parseList(s string) ([]int, error) {
	list := make([]int, 0)
	if s == "" {
		return list, nil
	}

	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		lo, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, errors.Wrapf(err, "bad cpu list %q", s)
		}
		hi := lo
		if len(bounds) == 2 {
			if hi, err = strconv.Atoi(bounds[1]); err != nil {
				return nil, errors.Wrapf(err, "bad cpu list %q", s)
			}
		}
		if hi < lo {
			return nil, errors.Errorf("bad cpu range %q", part)
		}
		for i := lo; i <= hi; i++ {
			list = append(list, i)
		}
	}
	return list, nil
}
