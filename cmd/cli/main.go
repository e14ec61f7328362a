package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/bootreplay/internal/app"
	"github.com/specialistvlad/bootreplay/internal/cli"
	"github.com/specialistvlad/bootreplay/internal/failure"
	"github.com/specialistvlad/bootreplay/internal/registry"
)

// main is the entrypoint for the bootreplay application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes build failures from runtime failures.
func exitCode(err error) int {
	switch {
	case failure.IsBuild(err):
		return 3
	case failure.IsRuntime(err):
		return 4
	default:
		return 1
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Modules replace the compiled-in set when given.
func run(ctx context.Context, outW io.Writer, args []string, modules ...registry.Module) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on registry mismatches, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	a := app.NewApp(outW, inv.Config, modules...)
	switch inv.Command {
	case cli.CommandBuild:
		_, err = a.Build(ctx)
	case cli.CommandRun:
		err = a.Run(ctx)
	case cli.CommandWatch:
		err = a.Watch(ctx)
	default:
		err = fmt.Errorf("unknown command %q", inv.Command)
	}
	return err
}
