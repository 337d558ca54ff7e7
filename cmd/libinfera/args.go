//go:build cgo && linux

package main

import (
	"fmt"
	"math"
)

// maxBlobBytes is the largest blob C.GoBytes can copy; its length is a C int.
const maxBlobBytes = math.MaxInt32

// matrixLen returns rows*cols as a float32 element count, refusing sizes
// whose byte length would not fit in an int.
func matrixLen(rows, cols uint64) (int, error) {
	const maxElems = uint64(math.MaxInt / 4)
	if rows > maxElems || cols > maxElems || (cols != 0 && rows > maxElems/cols) {
		return 0, fmt.Errorf("invalid input: %d x %d matrix is too large", rows, cols)
	}
	return int(rows * cols), nil
}

func blobLen(n uint64) (int, error) {
	if n > maxBlobBytes {
		return 0, fmt.Errorf("invalid input: blob of %d bytes exceeds %d", n, maxBlobBytes)
	}
	return int(n), nil
}
