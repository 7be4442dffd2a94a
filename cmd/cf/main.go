package main

import (
	"os"

	"commitflow/cmd/cf/commands"
)

func main() {
	// cobra 已经打印过错误
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
