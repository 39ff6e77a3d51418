package main

import "github.com/bilifav/bilifavdl/cmd"

func main() {
	cmd.Execute()
}
