package main

import (
	"os"

	"github.com/pricedash/pricedash/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
