package main

import "bundlectl/internal/cli"

func main() {
	cli.Execute()
}
