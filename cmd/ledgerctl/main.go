package main

import (
	"os"

	"github.com/ukydev/vehicle-ledger/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
