package main

import (
	"os"

	"noetl/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
