package main

import "github.com/mihaisavezi/llm-bridge/cmd"

func main() {
	cmd.Execute()
}
