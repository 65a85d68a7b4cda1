// Package main is the entry point for the rdt file transfer tool.
package main

import (
	"github.com/hannahoo/UCLA-CS-118/cmd"
)

func main() {
	cmd.Exit(cmd.Execute())
}
