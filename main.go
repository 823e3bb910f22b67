package main

import "github.com/coupledsim/gocpl/cmd"

func main() {
	cmd.Execute()
}
