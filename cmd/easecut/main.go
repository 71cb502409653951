package main

import "github.com/shrimbly/easy-peasy-ease/internal/cli"

func main() {
	cli.Main()
}
