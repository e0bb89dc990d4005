package main

import (
	"os"

	"github.com/edubill-dev/edubill/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
