package main

import "github.com/nfrund/relay/cmd/server/cmd"

func main() {
	cmd.Execute()
}
