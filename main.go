package main

import "itch-archiver/cmd"

func main() {
	cmd.Execute()
}
