package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/sfcpath/internal/cli"
)

// main is the entrypoint for the sfcpath command.
func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

// run executes the root command against args, writing to outW and errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	cmd := cli.NewRootCommand()
	cmd.SetOut(outW)
	cmd.SetErr(errW)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra itself.
		return cli.WrapExitError(cli.ExitCommandError, "invalid command", err)
	}
	return err
}
