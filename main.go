package main

import "github.com/nextlevelbuilder/unibox/cmd"

func main() {
	cmd.Execute()
}
