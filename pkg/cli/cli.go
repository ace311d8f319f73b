// Package cli wires the memory pipeline to its command line surface.
package cli

import (
	"context"

	"github.com/m-mizutani/tamias/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "tamias",
		Usage: "Long-lived conversational memory for agents",
		Commands: []*cli.Command{
			initCommand(),
			writeCommand(),
			searchCommand(),
			qaCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
