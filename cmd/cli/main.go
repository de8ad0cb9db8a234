package main

import "github.com/memdump-analysis/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
