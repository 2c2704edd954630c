package main

import "github.com/XR-at-CISESS/lma-data/cmd"

func main() {
	cmd.Execute()
}
