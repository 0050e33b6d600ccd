package main

import "carder-backend/cmd/carder-cli/cmd"

func main() {
	cmd.Execute()
}
