package main

import "github.com/stablepay-io/ms-go-notify/cmd"

func main() {
	cmd.Execute()
}
