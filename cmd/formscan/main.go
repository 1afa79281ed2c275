package main

import "github.com/instantwaste/formscan/cmd/formscan/cmd"

func main() {
	cmd.Execute()
}
