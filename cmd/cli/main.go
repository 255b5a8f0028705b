package main

import "meetrix/cmd/cli/command"

func main() {
	command.Execute()
}
