// Command rare runs the cognitive kernel as a line-oriented process: every
// stdin line becomes a user input and every decision is printed as JSON.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
