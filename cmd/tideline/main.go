package main

import (
	"os"

	"github.com/tideline/tideline/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
