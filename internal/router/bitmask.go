package router

import (
	"encoding/binary"
	"math/bits"
)

// Bitmask is a dense, fixed-width bitset. It backs the mask-bit free-pool,
// the valid_origins set on each RouterNode, and the transient per-message
// link-set used during remote fan-out.
type Bitmask struct {
	words []uint64
	width int
}

// NewBitmask creates a bitmask of the given width. If allSet is true every
// bit starts set; the mask-bit free-pool is built this way so every bit
// starts out available for allocation.
func NewBitmask(width int, allSet bool) *Bitmask {
	n := (width + 63) / 64
	b := &Bitmask{words: make([]uint64, n), width: width}
	if allSet {
		for i := range b.words {
			b.words[i] = ^uint64(0)
		}
		b.maskTail()
	}
	return b
}

// maskTail clears any bits beyond width in the final word so Count and
// FirstSet never observe them.
func (b *Bitmask) maskTail() {
	if b.width == 0 || len(b.words) == 0 {
		return
	}
	if rem := b.width % 64; rem != 0 {
		b.words[len(b.words)-1] &= (uint64(1) << uint(rem)) - 1
	}
}

func (b *Bitmask) Width() int { return b.width }

func (b *Bitmask) Set(bit int) {
	if bit < 0 || bit >= b.width {
		return
	}
	b.words[bit/64] |= uint64(1) << uint(bit%64)
}

func (b *Bitmask) Clear(bit int) {
	if bit < 0 || bit >= b.width {
		return
	}
	b.words[bit/64] &^= uint64(1) << uint(bit%64)
}

func (b *Bitmask) Value(bit int) bool {
	if bit < 0 || bit >= b.width {
		return false
	}
	return b.words[bit/64]&(uint64(1)<<uint(bit%64)) != 0
}

// FirstSet returns the lowest set bit without clearing it.
func (b *Bitmask) FirstSet() (int, bool) {
	for i, w := range b.words {
		if w == 0 {
			continue
		}
		return i*64 + bits.TrailingZeros64(w), true
	}
	return 0, false
}

func (b *Bitmask) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// MaskBitAllocator hands out the dense integer ids used to index
// Router.routersByMaskBit and Router.outLinksByMaskBit. Both halves of one
// inter-router connection share a single allocated bit (spec section 4.1).
type MaskBitAllocator struct {
	free *Bitmask
}

func NewMaskBitAllocator(width int) *MaskBitAllocator {
	return &MaskBitAllocator{free: NewBitmask(width, true)}
}

// Allocate returns the lowest free bit and marks it used, or false if the
// pool is exhausted.
func (a *MaskBitAllocator) Allocate() (int, bool) {
	bit, ok := a.free.FirstSet()
	if !ok {
		return 0, false
	}
	a.free.Clear(bit)
	return bit, true
}

func (a *MaskBitAllocator) Release(bit int) {
	a.free.Set(bit)
}

func (a *MaskBitAllocator) Width() int { return a.free.Width() }

func (a *MaskBitAllocator) InUse() int { return a.free.Width() - a.free.Count() }

// DecodeBitmask unpacks a little-endian, 8-bytes-per-word wire encoding of a
// valid_origins set (spec section 12's RouterNodeUpdate.ValidOrigins) into a
// Bitmask of the given width. Trailing words are zero-filled if data is
// shorter than width requires; a data longer than width requires is
// truncated to width.
func DecodeBitmask(width int, data []byte) *Bitmask {
	b := NewBitmask(width, false)
	for i := range b.words {
		off := i * 8
		if off >= len(data) {
			break
		}
		end := off + 8
		if end > len(data) {
			var word [8]byte
			copy(word[:], data[off:])
			b.words[i] = binary.LittleEndian.Uint64(word[:])
			break
		}
		b.words[i] = binary.LittleEndian.Uint64(data[off:end])
	}
	b.maskTail()
	return b
}
