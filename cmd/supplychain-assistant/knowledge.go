package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/vespa"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
	"github.com/custodia-labs/supplychain-assistant/internal/core/services"
	"github.com/custodia-labs/supplychain-assistant/internal/extractors"
	"github.com/custodia-labs/supplychain-assistant/internal/knowledge"
)

var ingestOpts struct {
	format      string
	category    string
	subcategory string
	tags        []string
	title       string
	chunkSize   int
	clear       bool
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the shared knowledge base",
}

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load a JSON, YAML, Markdown, text or PDF file into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		svc, closeFn, err := knowledgeService(cmd, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		if ingestOpts.clear {
			if ingestOpts.category == "" {
				return errors.New("--clear requires --category")
			}
			if err := svc.DeleteByCategory(ctx, ingestOpts.category); err != nil {
				return fmt.Errorf("clear category %s: %w", ingestOpts.category, err)
			}
			logger.Info("cleared knowledge category", "category", ingestOpts.category)
		}

		loader := knowledge.NewLoader(knowledge.LoaderConfig{
			PDF:    extractors.NewPDFExtractor(extractors.Config{Logger: logger}),
			Logger: logger,
		})
		items, err := loader.LoadFile(ctx, args[0], knowledge.Options{
			Format:      knowledge.Format(ingestOpts.format),
			Category:    ingestOpts.category,
			Subcategory: ingestOpts.subcategory,
			Tags:        ingestOpts.tags,
			Title:       ingestOpts.title,
			ChunkSize:   ingestOpts.chunkSize,
		})
		if err != nil {
			return err
		}

		added, err := svc.AddBatch(ctx, items)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d knowledge items from %s\n", added, len(items), args[0])
		return nil
	},
}

var knowledgeCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List knowledge categories with item counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := knowledgeService(cmd, slog.Default())
		if err != nil {
			return err
		}
		defer closeFn()

		cats, err := svc.Categories(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tITEMS")
		for _, c := range cats {
			fmt.Fprintf(tw, "%s\t%d\n", c.Category, c.Count)
		}
		return tw.Flush()
	},
}

var knowledgeDeleteCategoryCmd = &cobra.Command{
	Use:   "delete-category <category>",
	Short: "Remove every knowledge item in a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := knowledgeService(cmd, slog.Default())
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.DeleteByCategory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted category %s\n", args[0])
		return nil
	},
}

func init() {
	f := knowledgeIngestCmd.Flags()
	f.StringVar(&ingestOpts.format, "type", "", "file format: json, yaml, markdown, text or pdf (default: from extension)")
	f.StringVar(&ingestOpts.category, "category", "", "category for markdown, text and pdf files")
	f.StringVar(&ingestOpts.subcategory, "subcategory", "", "optional subcategory")
	f.StringSliceVar(&ingestOpts.tags, "tags", nil, "comma-separated tags")
	f.StringVar(&ingestOpts.title, "title", "", "title for text and pdf files")
	f.IntVar(&ingestOpts.chunkSize, "chunk-size", knowledge.DefaultChunkSize, "maximum characters per text entry")
	f.BoolVar(&ingestOpts.clear, "clear", false, "delete the category before loading")

	knowledgeCmd.AddCommand(knowledgeIngestCmd, knowledgeCategoriesCmd, knowledgeDeleteCategoryCmd)
}

// knowledgeService wires the knowledge base without Postgres. Redis only
// backs the embedding cache, so an unreachable Redis disables caching.
func knowledgeService(cmd *cobra.Command, logger *slog.Logger) (driving.KnowledgeService, func(), error) {
	cfg := loadConfig()
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	var client *redis.Client
	if c, err := openRedis(cmd.Context(), cfg.RedisURL); err != nil {
		logger.Warn("embedding cache disabled", "error", err)
	} else {
		client = c
	}
	closeFn := func() {
		if client != nil {
			_ = client.Close()
		}
	}

	embedder, err := newEmbedder(cfg, client, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	index := vespa.NewKnowledgeIndex(vespaConfig(cfg, logger))
	return services.NewKnowledgeService(index, embedder, logger), closeFn, nil
}
