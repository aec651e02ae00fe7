package main

import (
	"os"

	"github.com/TrevorS/cftree/cmd/cftree/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
