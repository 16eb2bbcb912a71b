package main

import (
	"os"

	"github.com/signalnine/benchforge/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
