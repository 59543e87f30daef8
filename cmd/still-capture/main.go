package main

import (
	"fmt"
	"os"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "still-capture:", err)
		os.Exit(1)
	}
}
