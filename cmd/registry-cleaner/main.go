package main

import (
	"os"

	"github.com/distribution/registry-cleaner/pruner"
	_ "github.com/distribution/registry-cleaner/registry/storage/cache/memory"
	_ "github.com/distribution/registry-cleaner/registry/storage/driver/filesystem"
)

func main() {
	if err := pruner.Cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
