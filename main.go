package main

import "github.com/gobii-ai/gobii-platform-sub000/cmd"

func main() {
	cmd.Execute()
}
