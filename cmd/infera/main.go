// Command infera serves and inspects ONNX models.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "infera:", err)
		os.Exit(1)
	}
}
