package main

import "github.com/acmchapter/gatepass/cmd"

func main() {
	cmd.Execute()
}
