package main

import "github.com/duplexio/duplex/cmd"

func main() {
	cmd.Execute()
}
