package main

import "github.com/kozaktomas/subtitle-stitcher/cmd"

func main() {
	cmd.Execute()
}
