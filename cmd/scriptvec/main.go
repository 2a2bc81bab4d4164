package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/scriptvec/scriptvec/internal/ai"
	"github.com/scriptvec/scriptvec/internal/batch"
	"github.com/scriptvec/scriptvec/internal/config"
	"github.com/scriptvec/scriptvec/internal/embedcache"
	"github.com/scriptvec/scriptvec/internal/job"
	"github.com/scriptvec/scriptvec/internal/modelregistry"
	"github.com/scriptvec/scriptvec/internal/pipeline"
	"github.com/scriptvec/scriptvec/internal/schedule"
	"github.com/scriptvec/scriptvec/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "scriptvec",
		Short: "screenplay embedding and semantic search toolkit",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	var (
		text       string
		screenplay bool
		entityType string
		entityID   string
		query      string
		limit      int
		threshold  float64
	)

	embedCmd := &cobra.Command{
		Use:   "embed",
		Short: "embed text and print or store the vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if entityID != "" {
				if err := app.pipeline.EmbedAndStore(ctx, entityType, entityID, text, nil); err != nil {
					return err
				}
				logutil.GetLogger(ctx).Info("embedding stored",
					zap.String("entity_type", entityType),
					zap.String("entity_id", entityID),
				)
				return nil
			}
			var vec []float32
			if screenplay {
				vec, err = app.pipeline.GenerateScreenplayEmbedding(ctx, text)
			} else {
				vec, err = app.pipeline.GenerateEmbedding(ctx, text)
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(vec)
		},
	}
	embedCmd.Flags().StringVar(&text, "text", "", "text to embed")
	embedCmd.Flags().BoolVar(&screenplay, "screenplay", false, "apply screenplay preprocessing")
	embedCmd.Flags().StringVar(&entityType, "entity-type", "scene", "entity type for storage")
	embedCmd.Flags().StringVar(&entityID, "entity-id", "", "store the vector under this entity id")
	_ = embedCmd.MarkFlagRequired("text")

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "rank stored vectors against a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			results, err := app.pipeline.Search(cmd.Context(), query, entityType, limit, threshold)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	searchCmd.Flags().StringVar(&query, "query", "", "query text")
	searchCmd.Flags().StringVar(&entityType, "entity-type", "scene", "entity type to search")
	searchCmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score")
	_ = searchCmd.MarkFlagRequired("query")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(app.cache.Stats())
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "age out old cache entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			return job.NewCacheCleanupJob(app.cache, app.cfg.Jobs.CacheMaxAgeDays).Run(cmd.Context())
		},
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "run scheduled cache maintenance until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			sched := schedule.NewCronScheduler()
			if err := sched.AddJob(job.NewCacheCleanupJob(app.cache, app.cfg.Jobs.CacheMaxAgeDays), app.cfg.Jobs.CacheCleanupSpec); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	rootCmd.AddCommand(embedCmd, searchCmd, statsCmd, sweepCmd, daemonCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

type app struct {
	cfg      *config.Config
	cache    *embedcache.Cache
	pipeline *pipeline.Pipeline
}

func setup(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)

	provider, err := ai.NewProvider(cfg.Provider.Type, cfg.Provider.Args)
	if err != nil {
		return nil, err
	}
	registry := modelregistry.NewWithDefaults()

	cache, err := embedcache.New(embedcache.Config{
		Dir:        cfg.Cache.Dir,
		MaxEntries: cfg.Cache.MaxEntries,
		Policy:     embedcache.Policy(cfg.Cache.Policy),
		TTLSeconds: cfg.Cache.TTLSeconds,
	})
	if err != nil {
		return nil, err
	}
	front := embedcache.Getter(cache)
	if cfg.Cache.MemorySize > 0 && cfg.Cache.MemoryTTLSeconds > 0 {
		front = embedcache.WrapMemoryFront(cache, cfg.Cache.MemorySize, time.Duration(cfg.Cache.MemoryTTLSeconds)*time.Second)
	}

	processor := batch.NewProcessor(provider, registry, batch.Config{
		Concurrency:   cfg.Batch.Concurrency,
		RetryAttempts: cfg.Batch.RetryAttempts,
		BaseDelayMS:   cfg.Batch.BaseDelayMS,
		BatchSize:     cfg.Batch.BatchSize,
		ChunkSize:     cfg.Batch.ChunkSize,
		ChunkOverlap:  cfg.Batch.ChunkOverlap,
	})

	store, err := vectorstore.New(storeConfig(cfg.Store))
	if err != nil {
		return nil, err
	}

	pipe, err := pipeline.New(front, processor, registry, store, pipeline.Config{
		ModelName:  cfg.Model.Name,
		Dimensions: cfg.Model.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, cache: cache, pipeline: pipe}, nil
}

func storeConfig(cfg config.StoreConfig) vectorstore.Config {
	out := vectorstore.Config{Type: cfg.Type, Args: cfg.Args}
	if cfg.Secondary != nil {
		secondary := storeConfig(*cfg.Secondary)
		out.Secondary = &secondary
	}
	return out
}
