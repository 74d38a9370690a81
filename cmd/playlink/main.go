package main

import (
	"github.com/rkoval/playlink/internal/cli"
)

func main() {
	cli.Execute()
}
