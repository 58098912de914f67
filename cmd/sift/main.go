package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sift/internal/config"
	"sift/internal/corpus"
	"sift/internal/embed"
	"sift/internal/engine"
	"sift/internal/logging"
	"sift/internal/memory"
	"sift/internal/planner"
	"sift/internal/ports"
	"sift/internal/reason"
	"sift/internal/retriever"
	"sift/internal/toolregistry"
	"sift/internal/tools/builtin"
	"sift/internal/vectorindex"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

const timeUnit = 10 * time.Millisecond

func main() {
	// .env keeps API keys out of shell history; absence is fine
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "sift",
		Short: "Retrieval-augmented iterative analysis over large corpora",
		Long: `sift decomposes a corpus into retrievable units, answers targeted
questions by pulling only relevant units into a bounded reasoning step, and
iterates across sub-questions while tracking what has already been examined.`,
		SilenceUsage: true,
	}

	root.AddCommand(newIndexCmd(), newAnalyzeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM so runs stop cooperatively between
// iterations.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type app struct {
	cfg      *config.Config
	logger   logging.Logger
	catalog  *corpus.Catalog
	index    vectorindex.Index
	embedder embed.Embedder
	indexer  func(corpusPath string) (*corpus.Indexer, error)
	retrieve *retriever.Retriever
}

// buildApp wires the indexing and retrieval pipeline from configuration.
func buildApp(verbose bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewComponentLogger("sift")
	if verbose {
		logger = logging.NewDebugLogger("sift")
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	index, err := buildIndex(cfg, embedder)
	if err != nil {
		return nil, err
	}
	if observer, err := vectorindex.NewObserver("sift", nil); err == nil {
		index = vectorindex.WithMetrics(index, observer)
	}

	catalog := corpus.NewCatalog()

	chunker, err := corpus.NewChunker(corpus.ChunkerConfig{
		MaxTokens:     cfg.Corpus.MaxTokens,
		OverlapTokens: cfg.Corpus.OverlapTokens,
		HardMaxBytes:  cfg.Corpus.HardMaxBytes,
	})
	if err != nil {
		return nil, err
	}

	indexerFactory := func(corpusPath string) (*corpus.Indexer, error) {
		return corpus.NewIndexer(corpus.IndexerConfig{
			CorpusPath:  corpusPath,
			ExcludeDirs: cfg.Corpus.ExcludeDirs,
			Extensions:  cfg.Corpus.Extensions,
			Concurrency: cfg.Corpus.Concurrency,
		}, chunker, embedder, index, catalog, logger), nil
	}

	retrieve := retriever.New(retriever.Config{
		TopK:       cfg.Retrieval.TopK,
		MaxRetries: cfg.Retrieval.MaxRetries,
	}, embedder, index, catalog, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		index:    index,
		embedder: embedder,
		indexer:  indexerFactory,
		retrieve: retrieve,
	}, nil
}

func buildEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embed.NewLocalEmbedder(cfg.Embedding.Dimensions), nil
	case "openai", "":
		if cfg.Embedding.APIKey == "" {
			return nil, fmt.Errorf("no embedding API key configured; set embedding.api_key in sift.yaml or OPENAI_API_KEY")
		}
		return embed.NewEmbedder(embed.Config{
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
			CacheSize:  cfg.Embedding.CacheSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildIndex(cfg *config.Config, embedder embed.Embedder) (vectorindex.Index, error) {
	switch cfg.Index.Backend {
	case "chromem":
		return vectorindex.NewChromemIndex(vectorindex.ChromemConfig{
			PersistPath: cfg.Index.PersistPath,
			Collection:  cfg.Index.Collection,
			Embed:       embedder.Embed,
		})
	case "memory", "":
		return vectorindex.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func newIndexCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "index <corpus-path>",
		Short: "Chunk and embed a corpus snapshot into the vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(verbose)
			if err != nil {
				return err
			}

			indexer, err := a.indexer(args[0])
			if err != nil {
				return err
			}

			fmt.Println(gray("indexing " + args[0] + " ..."))
			stats, err := indexer.Index(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%s %d/%d files, %d units (%d truncated, %d errors)\n",
				green("indexed"), stats.IndexedFiles, stats.TotalFiles,
				stats.TotalUnits, stats.TruncatedUnits, stats.ErrorFiles)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		verbose    bool
		corpusPath string
		maxTasks   int
	)

	cmd := &cobra.Command{
		Use:   "analyze <goal>",
		Short: "Run an iterative retrieval-augmented analysis toward a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(verbose)
			if err != nil {
				return err
			}

			if a.cfg.Reason.APIKey == "" {
				return fmt.Errorf("no reasoning API key configured; set reason.api_key in sift.yaml or OPENAI_API_KEY")
			}
			reasoner := reason.NewOpenAIReasoner(reason.Config{
				Model:   a.cfg.Reason.Model,
				APIKey:  a.cfg.Reason.APIKey,
				BaseURL: a.cfg.Reason.BaseURL,
			}, a.logger)

			registry := toolregistry.NewRegistry()
			for _, tool := range []ports.ToolExecutor{
				builtin.NewIndex(a.indexer),
				builtin.NewSearch(a.retrieve),
				builtin.NewAnalyze(reasoner, a.catalog),
			} {
				if err := registry.RegisterStatic(tool); err != nil {
					return err
				}
			}
			executor := toolregistry.NewExecutor(registry, a.logger)

			// The analysis operates on a point-in-time snapshot; indexing is
			// idempotent, so re-running over an unchanged corpus is cheap.
			indexer, err := a.indexer(corpusPath)
			if err != nil {
				return err
			}
			fmt.Println(gray("indexing " + corpusPath + " ..."))
			if _, err := indexer.Index(ctx); err != nil {
				return err
			}

			runCfg := a.cfg.Run
			if maxTasks > 0 {
				runCfg.MaxTasks = maxTasks
			}
			eng := engine.New(engine.Config{
				MaxIterations: runCfg.MaxIterations,
				Budget:        runCfg.Budget,
				TopK:          a.cfg.Retrieval.TopK,
				SeedQueries:   runCfg.SeedQueries,
				Planner:       planner.Config{MaxTasks: runCfg.MaxTasks},
			}, executor, a.logger, nil)

			result, err := eng.Run(ctx, args[0])
			if err != nil {
				return err
			}

			printResult(result)
			if result.Status == engine.StatusFailed {
				return fmt.Errorf("run failed: %v", result.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVarP(&corpusPath, "corpus", "c", ".", "corpus root to analyze")
	cmd.Flags().IntVar(&maxTasks, "max-tasks", 0, "override the task budget for this run")
	return cmd
}

func printResult(result *engine.RunResult) {
	switch result.Status {
	case engine.StatusDone:
		fmt.Printf("%s in %s (%d iterations)\n", green("done"), result.Duration.Round(timeUnit), result.Iterations)
	case engine.StatusBudgetExhausted:
		fmt.Printf("%s after %s (%d iterations, partial results)\n", yellow("budget exhausted"), result.Duration.Round(timeUnit), result.Iterations)
	case engine.StatusCanceled:
		fmt.Printf("%s after %s (partial results)\n", yellow("canceled"), result.Duration.Round(timeUnit))
	default:
		fmt.Printf("%s: %v (partial results)\n", red("failed"), result.Err)
	}

	for i, finding := range result.Findings {
		marker := green("✓")
		if finding.Status == memory.StatusFailed {
			marker = red("✗")
		} else if finding.Status == memory.StatusPartial {
			marker = yellow("~")
		}
		fmt.Printf("\n%s %s %s\n", marker, bold(fmt.Sprintf("finding %d", i+1)), gray("("+string(finding.Confidence)+" confidence)"))
		fmt.Printf("  %s %s\n", gray("query:"), finding.Query)
		fmt.Printf("  %s\n", finding.Conclusion)
		if len(finding.UnitIDs) > 0 {
			fmt.Printf("  %s %v\n", gray("units:"), finding.UnitIDs)
		}
	}
}
