package main

import "github.com/DrJLabs/Forgetful-sub001/cmd/memctl/cmd"

func main() {
	cmd.Execute()
}
