package main

import "slotcache/cmd"

func main() {
	cmd.Execute()
}
