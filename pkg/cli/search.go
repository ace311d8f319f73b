package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg    config
		user   string
		agent  string
		limit  int64
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to search within",
			Sources:     cli.EnvVars("TAMIAS_USER_ID"),
			Destination: &user,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID to search within",
			Sources:     cli.EnvVars("TAMIAS_AGENT_ID"),
			Destination: &agent,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories to return",
			Value:       5,
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print results as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Find stored memories by semantic similarity",
		ArgsUsage: "<query text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return goerr.New("query text is required")
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			results, err := uc.Search(ctx, &memory.SearchInput{
				Query:   query,
				UserID:  user,
				AgentID: agent,
				Limit:   int(limit),
			})
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(c.Root().Writer)
				encoder.SetIndent("", "  ")
				return encoder.Encode(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(c.Root().Writer, "No memories found")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(c.Root().Writer, "%.4f  %s  %s\n", r.Score, r.ID, r.Text)
			}
			return nil
		},
	}
}
