package main

import (
	"os"

	"github.com/odyssey-erp/authcore/cmd/authctl/cli"
)

func main() {
	os.Exit(cli.Execute())
}
