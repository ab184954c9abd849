package main

import "github.com/ppiankov/llmtape/internal/cli"

func main() {
	cli.Execute()
}
