// Package main is the entry point for the tvrecorder application.
package main

import (
	"os"

	"github.com/mjkirchner/tvrecorder/cmd/tvrecorder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
