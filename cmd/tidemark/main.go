package main

import (
	"os"

	"github.com/tidemark-io/tidemark/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
