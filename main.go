package main

import "github.com/codearena-oj/apiserver/cmd"

func main() {
	cmd.Execute()
}
