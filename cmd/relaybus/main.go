package main

import "relaybus-core/internal/app/cmd"

func main() {
	cmd.Execute()
}
