package main

import "github.com/crucible-project/crucible/internal/cli"

func main() {
	cli.Execute()
}
