package main

import (
	"github.com/anchor-vcs/anchor/internal/cli"
)

func main() {
	cli.Execute()
}
