package main

import "bizledger-backend/cmd"

func main() {
	cmd.Execute()
}
