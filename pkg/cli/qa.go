package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func qaCommand() *cli.Command {
	var (
		cfg   config
		user  string
		agent string
		limit int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID whose memories to answer from",
			Sources:     cli.EnvVars("TAMIAS_USER_ID"),
			Destination: &user,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID to scope answers to",
			Sources:     cli.EnvVars("TAMIAS_AGENT_ID"),
			Destination: &agent,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories used per answer",
			Value:       5,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "qa",
		Usage: "Interactive question answering over stored memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.New("? ")
			if err != nil {
				return goerr.Wrap(err, "failed to start prompt")
			}
			defer rl.Close()

			fmt.Fprintln(c.Root().Writer, "Ask about the stored memories. Type 'exit' to quit.")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read question")
				}

				question := strings.TrimSpace(line)
				if question == "" {
					continue
				}
				if question == "exit" || question == "quit" {
					return nil
				}

				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = " thinking..."
				s.Start()
				out, err := uc.Answer(ctx, &memory.SearchInput{
					Query:   question,
					UserID:  user,
					AgentID: agent,
					Limit:   int(limit),
				})
				s.Stop()

				if err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %v\n", err)
					continue
				}

				fmt.Fprintln(c.Root().Writer, out.Answer)
				for _, m := range out.Memories {
					fmt.Fprintf(c.Root().Writer, "  (%.4f) %s\n", m.Score, m.Text)
				}
			}
		},
	}
}
