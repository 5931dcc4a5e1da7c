package main

import "grimm.is/netemstate/cmd"

func main() {
	cmd.Execute()
}
