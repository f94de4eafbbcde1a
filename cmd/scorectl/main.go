package main

import (
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/exitcode"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitcode.FromError(err))
	}
}
