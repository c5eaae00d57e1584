package main

// Entry point, runs the cobra root command

import (
	"fmt"
	"os"

	"wave-portal/cmd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
