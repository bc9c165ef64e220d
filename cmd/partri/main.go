package main

import (
	"github.com/jqwang/partri/cmd/partri/cmd"
)

func main() {
	cmd.Execute()
}
