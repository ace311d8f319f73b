package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func initCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "init",
		Usage: "Prepare the memory collection in the vector store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			if err := repo.EnsureCollection(ctx, int(cfg.dimension)); err != nil {
				return goerr.Wrap(err, "failed to ensure collection")
			}

			fmt.Fprintf(c.Root().Writer, "Collection %q ready (dimension %d)\n", cfg.collection, cfg.dimension)
			return nil
		},
	}
}
