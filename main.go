package main

import "candor/cmd"

func main() {
	cmd.Execute()
}
