package main

import (
	"github.com/xkilldash9x/webpilot/cmd"
)

func main() {
	cmd.Execute()
}
