package main

import "github.com/agentic-research/orrery/cmd"

func main() {
	cmd.Execute()
}
