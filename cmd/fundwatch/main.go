package main

import "github.com/vietddude/fundwatch/internal/cli"

func main() {
	cli.Execute()
}
