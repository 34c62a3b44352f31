package main

import "sharedledger.org/cmd/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
