package main

import (
	"os"

	"github.com/runger/edjournal/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
