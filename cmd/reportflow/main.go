package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mtb-technology/reportflow/cmd/reportflow/internal"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			os.Exit(internal.ExitError)
		}
	}()

	ctx := context.Background()

	if err := Execute(ctx); err != nil {
		os.Exit(internal.HandleError(rootCmd, err))
	}

	os.Exit(internal.ExitSuccess)
}
