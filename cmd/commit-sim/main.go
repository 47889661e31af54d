package main

import (
	"github.com/arborchain/arbor-go/cmd/commit-sim/cmd"
)

func main() {
	cmd.Execute()
}
