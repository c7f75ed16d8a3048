// Command offpay is the wallet CLI for the offpay payment network.
package main

import (
	"fmt"
	"os"

	"github.com/offpay/offpay/cmd/offpay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
