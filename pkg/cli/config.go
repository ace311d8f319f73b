package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tamias/pkg/adapter"
	"github.com/m-mizutani/tamias/pkg/repository"
	"github.com/m-mizutani/tamias/pkg/usecase/memory"
	"github.com/m-mizutani/tamias/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Vector store
	store      string
	collection string
	project    string
	database   string
	chromePath string
	qdrantURL  string
	qdrantKey  string

	// LLM and embedding backends
	llm             string
	anthropicAPIKey string
	claudeModel     string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	embeddingModel  string
	dimension       int64

	// Pipeline tuning
	threshold float64
	bucket    string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("TAMIAS_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// storeFlags returns vector store backend flags with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Vector store backend (firestore, chromem, qdrant)",
			Value:       "chromem",
			Sources:     cli.EnvVars("TAMIAS_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Memory collection name",
			Value:       "memories",
			Sources:     cli.EnvVars("TAMIAS_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (firestore store)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory for persistent chromem storage (empty = in-memory)",
			Sources:     cli.EnvVars("TAMIAS_CHROMEM_PATH"),
			Destination: &cfg.chromePath,
		},
		&cli.StringFlag{
			Name:        "qdrant-url",
			Usage:       "Qdrant base URL",
			Value:       "http://localhost:6333",
			Sources:     cli.EnvVars("QDRANT_URL"),
			Destination: &cfg.qdrantURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.qdrantKey,
		},
	}
}

// llmFlags returns flags for LLM and embedding configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "Text generation backend (gemini, claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("TAMIAS_LLM"),
			Destination: &cfg.llm,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model for text generation",
			Value:       "claude-sonnet-4-0",
			Sources:     cli.EnvVars("TAMIAS_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for text generation",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("TAMIAS_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini model for embeddings",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("TAMIAS_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimensionality",
			Value:       768,
			Sources:     cli.EnvVars("TAMIAS_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Minimum similarity score for search results (0 = keep all)",
			Sources:     cli.EnvVars("TAMIAS_THRESHOLD"),
			Destination: &cfg.threshold,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for transcript archival (empty = disabled)",
			Sources:     cli.EnvVars("TAMIAS_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// loggerContext builds the configured logger and attaches it to the
// context for the rest of the command.
func (cfg *config) loggerContext(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the configured vector store backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.store {
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for firestore store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, cfg.collection)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore repository")
		}
		return repo, nil

	case "chromem":
		if cfg.chromePath != "" {
			repo, err := repository.NewPersistentChromem(cfg.chromePath, cfg.collection)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to open chromem store")
			}
			return repo, nil
		}
		repo, err := repository.NewChromem(cfg.collection)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create chromem store")
		}
		return repo, nil

	case "qdrant":
		if cfg.qdrantURL == "" {
			return nil, goerr.New("qdrant-url is required for qdrant store")
		}
		return repository.NewQdrant(cfg.qdrantURL, cfg.qdrantKey, cfg.collection), nil

	default:
		return nil, goerr.New("unknown store backend", goerr.Value("store", cfg.store))
	}
}

// newEmbedder creates the embedding backend. Embeddings always come from
// Gemini; Claude has no embedding API.
func (cfg *config) newEmbedder(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithEmbeddingDimension(int(cfg.dimension)),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

// newUseCase assembles the full pipeline from the configured backends
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	var llm adapter.LLM = gemini
	if cfg.llm == "claude" {
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required for claude")
		}
		llm = adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel))
	} else if cfg.llm != "gemini" {
		return nil, goerr.New("unknown llm backend", goerr.Value("llm", cfg.llm))
	}

	opts := []memory.Option{
		memory.WithScoreThreshold(cfg.threshold),
	}
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create transcript storage")
		}
		opts = append(opts, memory.WithTranscriptStorage(storage))
	}

	return memory.New(repo, llm, gemini, opts...), nil
}
