package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/joliv/mira/internal/types"
	"github.com/joliv/mira/pkg/blob"
	"github.com/joliv/mira/pkg/config"
	"github.com/joliv/mira/pkg/embedder"
	"github.com/joliv/mira/pkg/engine"
	"github.com/joliv/mira/pkg/extract"
	"github.com/joliv/mira/pkg/ingest"
	"github.com/joliv/mira/pkg/llm"
	"github.com/joliv/mira/pkg/store"
	"github.com/joliv/mira/pkg/wiki"
	"github.com/joliv/mira/server"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   cfg.Embedder.BaseURL,
		Dimension: cfg.Embedder.VectorDim,
	})

	var index types.VectorIndex
	if cfg.Database.URL == "" {
		color.Yellow("No database URL configured, using in-memory index (data is not persisted)")
		index = store.NewMemoryStore(cfg.Embedder.VectorDim)
	} else {
		pgIndex, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Embedder.VectorDim,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize vector store: %v", err)
		}
		index = pgIndex
	}
	defer index.Close()

	var blobs types.BlobStore = blob.Disabled{}
	if cfg.Blob.Bucket != "" {
		s3Store, err := blob.NewS3WithConfig(ctx, blob.S3Config{
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			KeyPrefix: cfg.Blob.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize blob store: %v", err)
		}
		blobs = s3Store
	} else {
		color.Yellow("No blob bucket configured, image uploads are disabled")
	}

	source := wiki.NewWithConfig(wiki.SourceConfig{
		Language:  cfg.Source.Language,
		UserAgent: cfg.Source.UserAgent,
		RateLimit: cfg.Source.RateLimit,
	})

	pipeline, err := ingest.NewWithConfig(ingest.PipelineConfig{
		ChunkSize:              cfg.Ingest.ChunkSize,
		ChunkOverlap:           cfg.Ingest.ChunkOverlap,
		AllowedImageExtensions: cfg.Ingest.AllowedImageExtensions,
		TrustedImageHost:       cfg.Ingest.TrustedImageHost,
		UserAgent:              cfg.Source.UserAgent,
	}, source, emb, index, blobs, extract.NewPDFExtractor())
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}

	generator, err := llm.NewGeneratorWithConfig(llm.GeneratorConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	eng := engine.NewWithConfig(engine.EngineConfig{
		DefaultK:  cfg.Search.DefaultK,
		UserAgent: cfg.Source.UserAgent,
	}, emb, index, generator)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(eng, pipeline).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %v", err)
		}
	}

	return nil
}
