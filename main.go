package main

import "github.com/Hokusai-protocol/hokusai-token-sub002/internal/cli"

func main() {
	cli.Execute()
}
