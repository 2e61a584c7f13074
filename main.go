package main

import "goldpipe/cmd"

func main() {
	cmd.Execute()
}
