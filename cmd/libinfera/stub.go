//go:build !(cgo && linux)

// Command libinfera needs cgo on linux; this stub keeps the package buildable elsewhere.
package main

func main() {}
