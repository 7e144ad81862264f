package main

import "github.com/vietddude/lnbridge/internal/cli"

func main() {
	cli.Execute()
}
