// Package bitmap provides a fixed size bit set, sized by the caller.
package bitmap

import (
	"math/bits"
	"strconv"
	"strings"
)

// Bitmap is a fixed size bit set.
type Bitmap struct {
	nr    int
	words []uint64
}

// New returns a bitmap of nr bits, all cleared.
func New(nr int) *Bitmap {
	if nr < 0 {
		nr = 0
	}
	return &Bitmap{
		nr:    nr,
		words: make([]uint64, (nr+63)/64),
	}
}

// Nr returns the number of bits of the bitmap.
func (b *Bitmap) Nr() int { return b.nr }

// Set sets or clears the bit. Out of range bits are ignored.
func (b *Bitmap) Set(i int, v bool) {
	if i < 0 || i >= b.nr {
		return
	}
	if v {
		b.words[i/64] |= 1 << uint(i%64)
	} else {
		b.words[i/64] &^= 1 << uint(i%64)
	}
}

// Get returns the bit. Out of range bits are cleared.
func (b *Bitmap) Get(i int) bool {
	if i < 0 || i >= b.nr {
		return false
	}
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset clears every bit.
func (b *Bitmap) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// CopyFrom copies the bits of src, truncated to the size of b.
func (b *Bitmap) CopyFrom(src *Bitmap) {
	b.Reset()
	for i := 0; i < src.nr && i < b.nr; i++ {
		b.Set(i, src.Get(i))
	}
}

// Members returns the set bits in ascending order.
func (b *Bitmap) Members() []int {
	m := make([]int, 0, b.Count())
	for i := 0; i < b.nr; i++ {
		if b.Get(i) {
			m = append(m, i)
		}
	}
	return m
}

// String formats the bitmap as a linux cpu list, e.g. "0-3,8".
func (b *Bitmap) String() string {
	var sb strings.Builder
	for i := 0; i < b.nr; i++ {
		if !b.Get(i) {
			continue
		}
		j := i
		for j+1 < b.nr && b.Get(j+1) {
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(i))
		if j > i {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(j))
		}
		i = j
	}
	return sb.String()
}
