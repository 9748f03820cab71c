package main

import (
	"os"

	"github.com/tankerfleet/tankerfleet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
