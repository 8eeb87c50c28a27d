package main

import "github.com/jfmyers9/spotlog/cmd"

func main() {
	cmd.Execute()
}
