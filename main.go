// Package main provides the entry point for convpred.
// convpred evaluates a geometric convolution branch predictor against
// pipeline event traces and reports accuracy by load-dependence depth.
//
// For the full CLI, use: go run ./cmd/convpred
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("convpred - Geometric Convolution Branch Predictor")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ./cmd/convpred    Replay traces and report per-depth accuracy")
	fmt.Println("  ./cmd/tracegen    Write a synthetic event trace")
	fmt.Println("  ./cmd/benchmark   Run the synthetic benchmark suite")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/convpred -h' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/convpred' instead.")
	}
}
