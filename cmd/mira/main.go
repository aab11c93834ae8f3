package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

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
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	var configPath, topicsFile string
	var ask bool

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&topicsFile, "topics-file", "", "File with one topic per line")
	flag.BoolVar(&ask, "ask", false, "Start an interactive question loop after ingestion")
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

	topics := flag.Args()
	if topicsFile != "" {
		fileTopics, err := readTopicsFile(topicsFile)
		if err != nil {
			log.Fatal(err)
		}
		topics = append(topics, fileTopics...)
	}

	// With no topics named and no ask loop requested, seed the index with
	// the curated default set from config.
	if len(topics) == 0 && !ask {
		topics = cfg.Ingest.Topics
	}

	if err := run(cfg, topics, ask); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, topics []string, ask bool) error {
	ctx := context.Background()

	emb := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   cfg.Embedder.BaseURL,
		Dimension: cfg.Embedder.VectorDim,
	})

	index, err := newIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	if len(topics) > 0 {
		if err := runIngestion(ctx, cfg, emb, index, topics); err != nil {
			return err
		}
	}

	if ask {
		return runAskLoop(ctx, cfg, emb, index)
	}
	return nil
}

func newIndex(ctx context.Context, cfg *config.Config) (types.VectorIndex, error) {
	if cfg.Database.URL == "" {
		color.Yellow("No database URL configured, using in-memory index (data is not persisted)")
		return store.NewMemoryStore(cfg.Embedder.VectorDim), nil
	}

	index, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Embedder.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %v", err)
	}
	return index, nil
}

func runIngestion(ctx context.Context, cfg *config.Config, emb types.Embedder,
	index types.VectorIndex, topics []string) error {

	if cfg.Blob.Bucket == "" {
		return errors.New("blob.bucket is required for ingestion")
	}

	blobs, err := blob.NewS3WithConfig(ctx, blob.S3Config{
		Bucket:    cfg.Blob.Bucket,
		Region:    cfg.Blob.Region,
		KeyPrefix: cfg.Blob.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %v", err)
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

	color.Blue("\nIngesting %d topics\n", len(topics))
	bar := getProgressBar(len(topics), "Ingesting topics...")

	results := pipeline.IngestTopics(ctx, topics, func(r ingest.TopicResult) {
		bar.Add(1)
	})
	bar.Finish()

	var chunks, failed, skipped int
	for _, r := range results {
		if r.Err != nil {
			skipped++
			continue
		}
		chunks += r.Chunks
		failed += r.Failed
	}

	color.Green("\n✓ Stored %d chunks from %d topics\n", chunks, len(results)-skipped)
	if failed > 0 {
		color.Yellow("⚠ %d chunks dropped\n", failed)
	}
	if skipped > 0 {
		color.Yellow("⚠ %d topics skipped (see log for reasons)\n", skipped)
	}
	return nil
}

func runAskLoop(ctx context.Context, cfg *config.Config, emb types.Embedder, index types.VectorIndex) error {
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

	color.Cyan("\nAsk your knowledge base (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		spinner := getSpinner("Thinking...")
		result, err := eng.Answer(ctx, query, 0)
		spinner.Finish()
		fmt.Println()

		if err != nil {
			color.Red("Error: %v", err)
			continue
		}
		if result.Error != "" {
			color.Red("Error: %s", result.Error)
			continue
		}

		assistantPrompt("Assistant: ")
		fmt.Println(result.Answer)
		if result.SuggestedImage != nil {
			color.Blue("Related image: %s", *result.SuggestedImage)
		}
	}

	return scanner.Err()
}

func readTopicsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topics file: %v", err)
	}
	defer f.Close()

	var topics []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		topic := strings.TrimSpace(scanner.Text())
		if topic == "" || strings.HasPrefix(topic, "#") {
			continue
		}
		topics = append(topics, topic)
	}
	return topics, scanner.Err()
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("topics"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
