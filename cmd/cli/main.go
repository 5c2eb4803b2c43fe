package main

import "github.com/taskgraph/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
