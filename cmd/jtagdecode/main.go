package main

import "github.com/OpenTraceLab/jtagdecode/cmd/jtagdecode/cmd"

func main() {
	cmd.Execute()
}
