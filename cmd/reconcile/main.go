package main

import (
	"os"

	"github.com/dvloznov/statement-reconciler/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
