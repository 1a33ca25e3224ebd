package main

import "seerr-relay/cmd"

func main() {
	cmd.Execute()
}
