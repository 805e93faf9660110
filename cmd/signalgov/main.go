package main

import (
	"os"

	"github.com/rustyeddy/signalgov/cmd/signalgov/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
