// Command memdemo drives a FreeListAllocator interactively so block layout
// can be inspected by hand. Every menu option runs against a fresh arena;
// addresses are printed as offsets into the arena, which makes the runs
// reproducible.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-memlab/arena/malloc"
)

const (
	intSize    = 4 // the classic scenarios talk about C ints
	doubleSize = 8
)

var arenaSize = flag.Int("size", 1000, "arena capacity in bytes")

func main() {
	flag.Parse()

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("1. Allocate an int, free it, allocate another")
		fmt.Println("2. Allocate two ints")
		fmt.Println("3. Allocate three ints, free the middle one")
		fmt.Println("4. Allocate one char, then one int")
		fmt.Println("5. Allocate an 80-element int array, then one int")
		fmt.Println("6. Quit")
		fmt.Print("Choose a menu option: ")

		if !in.Scan() {
			return
		}
		choice, err := strconv.Atoi(strings.TrimSpace(in.Text()))
		if err != nil {
			fmt.Println("not a number, try again")
			continue
		}
		if choice == 6 {
			fmt.Println("Done!")
			return
		}
		if choice < 1 || choice > 5 {
			fmt.Println("unknown option, try again")
			continue
		}

		fmt.Printf("\n--- Test case %d ---\n", choice)
		a, err := malloc.NewFreeListAllocator(*arenaSize)
		if err != nil {
			fmt.Fprintln(os.Stderr, "memdemo:", err)
			os.Exit(1)
		}

		switch choice {
		case 1:
			reuseAfterFree(a)
		case 2:
			spacingOfTwoInts(a)
		case 3:
			reuseAfterInterveningArray(a)
		case 4:
			charThenInt(a)
		case 5:
			arrayThenInt(a)
		}
	}
}

// reuseAfterFree frees an int and allocates another of the same size; both
// land on the same data region.
func reuseAfterFree(a *malloc.FreeListAllocator) {
	one := mustAlloc(a, intSize)
	fmt.Printf("int A at offset %d\n", a.Offset(one))
	a.Free(one)

	two := mustAlloc(a, intSize)
	fmt.Printf("int B at offset %d (expected: same as A)\n", a.Offset(two))
}

// spacingOfTwoInts shows that back-to-back allocations are exactly one
// header plus the aligned request apart.
func spacingOfTwoInts(a *malloc.FreeListAllocator) {
	one := mustAlloc(a, intSize)
	two := mustAlloc(a, intSize)
	fmt.Printf("int A at offset %d\n", a.Offset(one))
	fmt.Printf("int B at offset %d\n", a.Offset(two))
	fmt.Printf("B - A = %d bytes (expected: overhead %d + aligned int %d)\n",
		a.Offset(two)-a.Offset(one), malloc.Overhead, malloc.Alignment)
}

// reuseAfterInterveningArray frees the middle of three ints, allocates an
// array too large for the hole, then one more int, which lands exactly on
// the freed block.
func reuseAfterInterveningArray(a *malloc.FreeListAllocator) {
	one := mustAlloc(a, intSize)
	two := mustAlloc(a, intSize)
	three := mustAlloc(a, intSize)
	fmt.Printf("int A at offset %d\n", a.Offset(one))
	fmt.Printf("int B at offset %d\n", a.Offset(two))
	fmt.Printf("int C at offset %d\n", a.Offset(three))

	offB := a.Offset(two)
	a.Free(two)
	fmt.Println("freed int B")

	arr := mustAlloc(a, 2*doubleSize)
	fmt.Printf("array of 2 doubles at offset %d\n", a.Offset(arr))

	four := mustAlloc(a, intSize)
	fmt.Printf("int D at offset %d (expected: %d, the freed B)\n", a.Offset(four), offB)
}

// charThenInt shows that a one-byte request is rounded up to the alignment,
// so the spacing matches the two-int case.
func charThenInt(a *malloc.FreeListAllocator) {
	c := mustAlloc(a, 1)
	one := mustAlloc(a, intSize)
	fmt.Printf("char A at offset %d\n", a.Offset(c))
	fmt.Printf("int B at offset %d\n", a.Offset(one))
	fmt.Printf("B - A = %d bytes (expected: overhead %d + alignment %d)\n",
		a.Offset(one)-a.Offset(c), malloc.Overhead, malloc.Alignment)
}

// arrayThenInt verifies the layout after a large allocation and that
// freeing the array leaves the int's address and value untouched.
func arrayThenInt(a *malloc.FreeListAllocator) {
	arr := mustAlloc(a, 80*intSize)
	one := mustAlloc(a, intSize)
	copy(one, []byte{42, 0, 0, 0})

	fmt.Printf("array at offset %d\n", a.Offset(arr))
	fmt.Printf("int A at offset %d (expected: array + %d)\n",
		a.Offset(one), 80*intSize+malloc.Overhead)
	fmt.Printf("value of int A: %d\n", one[0])

	a.Free(arr)
	fmt.Println("freed array")
	fmt.Printf("int A still at offset %d, value %d\n", a.Offset(one), one[0])
}

func mustAlloc(a *malloc.FreeListAllocator, n int) []byte {
	b, err := a.Alloc(n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "memdemo: alloc:", err)
		os.Exit(1)
	}
	return b
}
