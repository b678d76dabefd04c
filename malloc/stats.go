package malloc

import "unsafe"

// Available returns the total bytes currently held on the free list.
func (a *FreeListAllocator) Available() int {
	a.panicIfClosed()
	total := 0
	for off := a.head; off != nilOffset; off = a.header(off).next {
		total += int(a.header(off).size)
	}
	return total
}

// Capacity returns the usable bytes the arena was initialized with.
func (a *FreeListAllocator) Capacity() int {
	a.panicIfClosed()
	return a.capacity
}

// FreeBlocks returns the number of blocks on the free list.
func (a *FreeListAllocator) FreeBlocks() int {
	a.panicIfClosed()
	n := 0
	for off := a.head; off != nilOffset; off = a.header(off).next {
		n++
	}
	return n
}

// LargestFree returns the size of the largest free block, or 0 when the
// arena is exhausted. With no coalescing, the gap between Available and
// LargestFree is a direct measure of fragmentation.
func (a *FreeListAllocator) LargestFree() int {
	a.panicIfClosed()
	largest := 0
	for off := a.head; off != nilOffset; off = a.header(off).next {
		if sz := int(a.header(off).size); sz > largest {
			largest = sz
		}
	}
	return largest
}

// Offset reports where block's data region starts within the arena. Offsets
// are stable for the allocator's lifetime, which makes them usable as
// addresses in layout assertions and diagnostics.
func (a *FreeListAllocator) Offset(block []byte) int {
	a.panicIfClosed()
	if cap(block) == 0 {
		return -1
	}
	data := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	start := uintptr(a.arenaStart)
	if data < start || data >= start+uintptr(len(a.arena)) {
		panic("malloc: block not in arena")
	}
	return int(data - start)
}
