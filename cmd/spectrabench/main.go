// Command spectrabench records and queries spectral-algorithm benchmark runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		exitFunc(1)
	}
}
