package main

import "seedbed/cmd/cli"

func main() {
	cli.Execute()
}
