package main

import (
	"os"

	"github.com/wcallahan/searchai/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
