package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modelkit/cmd/modelctl/commands"
	_ "modelkit/iris"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "modelctl:", err)
		stop()
		os.Exit(1)
	}
}
