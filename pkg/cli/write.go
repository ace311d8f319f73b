package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/model"
	"github.com/m-mizutani/tamias/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// conversationFile is the YAML shape accepted by `write --input`: a single
// conversation under `messages`, a plain list under `conversations`, or
// `sessions` entries carrying their own metadata.
type conversationFile struct {
	Messages      []model.Message   `yaml:"messages"`
	Conversations [][]model.Message `yaml:"conversations"`
	Sessions      []sessionEntry    `yaml:"sessions"`
}

type sessionEntry struct {
	Metadata map[string]string `yaml:"metadata"`
	Messages []model.Message   `yaml:"messages"`
}

// writeJob is one pipeline invocation resolved from the input sources
type writeJob struct {
	conversation string
	metadata     map[string]string
}

func writeCommand() *cli.Command {
	var (
		cfg   config
		user  string
		agent string
		input string
		meta  []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID owning the memories",
			Sources:     cli.EnvVars("TAMIAS_USER_ID"),
			Destination: &user,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID scoping the memories",
			Sources:     cli.EnvVars("TAMIAS_AGENT_ID"),
			Destination: &agent,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "YAML conversation file ('-' for stdin); omit to pass text as arguments",
			Destination: &input,
		},
		&cli.StringSliceFlag{
			Name:        "meta",
			Usage:       "Extra metadata as key=value, repeatable",
			Destination: &meta,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "write",
		Usage:     "Run the memory pipeline over conversation text",
		ArgsUsage: "[conversation text...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			extraMetadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			jobs, err := loadConversations(input, c.Args().Slice())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return goerr.New("no conversation text given")
			}

			uc, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			for _, job := range jobs {
				report, err := uc.Write(ctx, &memory.WriteInput{
					Conversation:  job.conversation,
					UserID:        user,
					AgentID:       agent,
					ExtraMetadata: mergeMetadata(extraMetadata, job.metadata),
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(c.Root().Writer, "added=%d updated=%d deleted=%d skipped=%d failed=%d\n",
					report.Added, report.Updated, report.Deleted, report.Skipped, len(report.Failures))
			}
			return nil
		},
	}
}

// loadConversations resolves the conversation sources: a YAML file, stdin,
// or the raw command line arguments.
func loadConversations(input string, args []string) ([]writeJob, error) {
	if input == "" {
		if len(args) == 0 {
			return nil, nil
		}
		return []writeJob{{conversation: strings.Join(args, " ")}}, nil
	}

	var data []byte
	var err error
	if input == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read stdin")
		}
	} else {
		data, err = os.ReadFile(input)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read input file", goerr.Value("path", input))
		}
	}

	var file conversationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse conversation file")
	}

	var out []writeJob
	if len(file.Messages) > 0 {
		out = append(out, writeJob{conversation: model.RenderConversation(file.Messages)})
	}
	for _, messages := range file.Conversations {
		if text := model.RenderConversation(messages); text != "" {
			out = append(out, writeJob{conversation: text})
		}
	}
	for _, session := range file.Sessions {
		if text := model.RenderConversation(session.Messages); text != "" {
			out = append(out, writeJob{conversation: text, metadata: session.Metadata})
		}
	}
	return out, nil
}

// mergeMetadata overlays per-session metadata on the command line pairs
func mergeMetadata(base, overlay map[string]string) map[string]string {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, goerr.New("metadata must be key=value", goerr.Value("got", pair))
		}
		out[key] = value
	}
	return out, nil
}
