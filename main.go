package main

import "github.com/kogorman/sdclone/cmd"

func main() {
	cmd.Execute()
}
