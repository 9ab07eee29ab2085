package main

import (
	"fmt"
	"os"

	"github.com/sidekick-agent/sidekick/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
		os.Exit(1)
	}
}
