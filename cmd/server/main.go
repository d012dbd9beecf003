package main

import "github.com/planzy/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
