// Package mmap acquires anonymous memory mappings used as arena backing
// stores, keeping the arena bytes outside the Go heap.
package mmap

// Alloc maps size bytes of private, read-write, zero-initialized memory.
func Alloc(size int) ([]byte, error) {
	return alloc(size)
}

// Free releases a mapping returned by Alloc. Free(nil) is a no-op.
func Free(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return free(data)
}
