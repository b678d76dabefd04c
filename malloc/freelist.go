// Package malloc implements a fixed-arena allocator with inline block
// metadata. FreeListAllocator manages one contiguous arena using an
// intrusive singly-linked free list and a first-fit selection policy:
// Alloc walks the list, takes the first block large enough, splits off the
// remainder when it is still usable, and Free pushes the block back onto
// the front of the list. Adjacent free blocks are never merged.
//
// An allocator has exactly one owner; it is not goroutine-safe.
package malloc

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/go-memlab/arena/internal/mmap"
)

const (
	// Overhead is the size of the header kept in front of every block's
	// data region. Headers live inside the arena itself.
	Overhead = int(unsafe.Sizeof(blockHeader{}))

	// Alignment is the allocation granularity: requested sizes are rounded
	// up to a multiple of the pointer width, so every data region starts on
	// a pointer-sized boundary.
	Alignment = int(unsafe.Sizeof(uintptr(0)))

	// MaxCapacity bounds a single arena; block sizes and list links are
	// kept as uint32 offsets in the headers.
	MaxCapacity = 1<<31 - 1
)

const (
	// stateFree/stateAllocated tag a block's lifecycle. Free checks the tag
	// to detect double frees and foreign pointers instead of silently
	// corrupting the list.
	stateFree      uint32 = 0xF4EE0B10
	stateAllocated uint32 = 0xA110CA7E

	// nilOffset terminates the free list.
	nilOffset = ^uint32(0)
)

var (
	// ErrInvalidSize is returned by Alloc for non-positive sizes.
	ErrInvalidSize = errors.New("malloc: invalid size")

	// ErrOutOfMemory is returned by Alloc when no free block satisfies the
	// request. The arena is unchanged; freeing blocks and retrying is legal.
	ErrOutOfMemory = errors.New("malloc: out of memory")
)

// blockHeader is the metadata record written immediately before every
// block's data region.
type blockHeader struct {
	state uint32 // stateFree or stateAllocated
	size  uint32 // usable bytes in the data region, excludes the header
	next  uint32 // arena offset of the next free header; nilOffset at the tail
	_     uint32 // pad to 16 bytes so data regions keep pointer alignment
}

// FreeListAllocator is a first-fit allocator over a single fixed arena.
type FreeListAllocator struct {
	// arena is the backing store; every block span lies inside it. nil
	// after Close.
	arena []byte

	// arenaStart is a cached pointer to the start of the arena, used for
	// offset calculations in Alloc and Free.
	arenaStart unsafe.Pointer

	// head is the arena offset of the first free block header, or
	// nilOffset when no free block remains.
	head uint32

	// capacity is the usable size of the initial block.
	capacity int

	// release returns the arena to the OS for mapped allocators; nil for
	// heap-backed arenas.
	release func([]byte) error
}

// NewFreeListAllocator creates an allocator whose arena lives on the Go
// heap. It acquires capacity+Overhead bytes and makes all of capacity
// available through Alloc. The arena is not zeroed.
func NewFreeListAllocator(capacity int) (*FreeListAllocator, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("malloc: capacity must be in (0, %d], got %d", MaxCapacity, capacity)
	}
	total := capacity + Overhead
	return newFreeListAllocator(dirtmake.Bytes(total, total), nil)
}

// NewFreeListAllocatorWithArena creates an allocator over a caller-supplied
// buffer. The first len(arena)-Overhead bytes become the usable capacity.
// The caller must not touch arena directly afterwards.
func NewFreeListAllocatorWithArena(arena []byte) (*FreeListAllocator, error) {
	return newFreeListAllocator(arena, nil)
}

// NewMappedFreeListAllocator places the arena in an anonymous mapping
// outside the Go heap. Close releases the mapping; any use of the allocator
// after Close panics.
func NewMappedFreeListAllocator(capacity int) (*FreeListAllocator, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("malloc: capacity must be in (0, %d], got %d", MaxCapacity, capacity)
	}
	data, err := mmap.Alloc(capacity + Overhead)
	if err != nil {
		return nil, fmt.Errorf("malloc: backing store: %w", err)
	}
	return newFreeListAllocator(data, mmap.Free)
}

func newFreeListAllocator(arena []byte, release func([]byte) error) (*FreeListAllocator, error) {
	if len(arena) <= Overhead {
		return nil, fmt.Errorf("malloc: arena too small, need more than %d bytes, got %d", Overhead, len(arena))
	}
	if len(arena)-Overhead > MaxCapacity {
		return nil, fmt.Errorf("malloc: arena too large, capacity must be <= %d, got %d", MaxCapacity, len(arena)-Overhead)
	}

	a := &FreeListAllocator{
		arena:      arena,
		arenaStart: unsafe.Pointer(&arena[0]),
		head:       0,
		capacity:   len(arena) - Overhead,
		release:    release,
	}

	// The initial block covers the whole arena.
	genesis := a.header(0)
	genesis.state = stateFree
	genesis.size = uint32(a.capacity)
	genesis.next = nilOffset
	return a, nil
}

// Alloc carves size bytes out of the arena and returns the block's data
// region with len == size and cap equal to the block's full usable size.
// The first free block whose data region can hold the aligned request is
// taken; when the leftover could still hold another header plus at least
// one pointer-width of data, the block is split and the remainder stays on
// the free list in the candidate's place. Contents are not zeroed.
func (a *FreeListAllocator) Alloc(size int) ([]byte, error) {
	a.panicIfClosed()
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if size > a.capacity {
		return nil, ErrOutOfMemory
	}
	aligned := uint32(alignUp(size))

	prev := nilOffset
	for off := a.head; off != nilOffset; {
		hdr := a.header(off)
		if hdr.size < aligned {
			prev, off = off, hdr.next
			continue
		}

		// First fit. A free block's own header is reused in place, so the
		// fit only needs the aligned payload; the extra header matters only
		// for the split below.
		if hdr.size >= aligned+uint32(2*Overhead+Alignment) {
			rest := a.header(off + uint32(Overhead) + aligned)
			rest.state = stateFree
			rest.size = hdr.size - aligned - uint32(Overhead)
			rest.next = hdr.next
			hdr.size = aligned
			a.unlink(prev, off+uint32(Overhead)+aligned)
		} else {
			// Remainder too small to stand alone: hand the block out whole,
			// keeping its original size.
			a.unlink(prev, hdr.next)
		}
		hdr.state = stateAllocated

		data := unsafe.Add(a.arenaStart, uintptr(off)+uintptr(Overhead))
		return unsafe.Slice((*byte)(data), hdr.size)[:size], nil
	}
	return nil, ErrOutOfMemory
}

// Free returns a block to the allocator by pushing it onto the front of the
// free list (LIFO). Free(nil) is a no-op. The slice must be one returned by
// Alloc on this allocator, possibly resliced in length but never moved;
// anything else panics rather than corrupting the list.
//
// Adjacent free blocks are not merged; the block's size is kept as last
// shaped and trusted on the next traversal.
func (a *FreeListAllocator) Free(block []byte) {
	a.panicIfClosed()
	if cap(block) == 0 {
		return
	}

	data := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	start := uintptr(a.arenaStart)
	if data < start+uintptr(Overhead) || data >= start+uintptr(len(a.arena)) {
		panic("malloc: block not in arena")
	}
	if (data-start)%uintptr(Alignment) != 0 {
		panic("malloc: misaligned block")
	}

	off := uint32(data - start - uintptr(Overhead))
	hdr := a.header(off)
	switch hdr.state {
	case stateAllocated:
	case stateFree:
		panic("malloc: double free")
	default:
		panic("malloc: invalid block")
	}
	if int(hdr.size) < cap(block) {
		panic("malloc: corrupted block size")
	}

	hdr.state = stateFree
	hdr.next = a.head
	a.head = off
}

// Close releases the backing store of a mapped allocator and poisons the
// allocator; heap-backed arenas have nothing to release but are poisoned
// all the same. Close is idempotent.
func (a *FreeListAllocator) Close() error {
	if a.arena == nil {
		return nil
	}
	arena := a.arena
	a.arena = nil
	a.arenaStart = nil
	a.head = nilOffset
	if a.release == nil {
		return nil
	}
	return a.release(arena)
}

// header interprets the arena bytes at off as a block header.
func (a *FreeListAllocator) header(off uint32) *blockHeader {
	return (*blockHeader)(unsafe.Add(a.arenaStart, uintptr(off)))
}

// unlink replaces the list entry after prev with succ. prev == nilOffset
// means the entry being replaced is the list head.
func (a *FreeListAllocator) unlink(prev, succ uint32) {
	if prev == nilOffset {
		a.head = succ
	} else {
		a.header(prev).next = succ
	}
}

func (a *FreeListAllocator) panicIfClosed() {
	if a.arena == nil {
		panic("malloc: use after Close")
	}
}

// alignUp rounds n up to the next multiple of the pointer width.
func alignUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
