// Command enginectl is the operator CLI for the workflow engine: every
// subcommand wires its own short-lived copy of the engine (config,
// database, stores, templates, handlers, saga) and issues exactly one
// in-process operation before exiting, since there is no remote API for
// it to call.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
)

func main() {
	cmd := newRootCommand()
	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			if err == nil {
				return
			}
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
		}),
	); err != nil {
		os.Exit(1)
	}
}
