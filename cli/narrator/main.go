package main

import (
	"os"

	narratorcmder "github.com/papercomputeco/narrator/cmd/narrator"
)

func main() {
	cmd := narratorcmder.NewNarratorCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
