package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/retrieval"
)

const queryTimeout = 2 * time.Minute

// newSearchCmd creates the search subcommand.
func newSearchCmd() *cobra.Command {
	var (
		category  string
		minPrice  float64
		maxPrice  float64
		limit     int
		threshold float64
		explain   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Recommend products for a natural-language query",
		Args:  cobra.MinimumNArgs(1),
		Example: `  recommendation-cli search "gaming laptop under $500"
  recommendation-cli search "running shoes" --category Shoes --max-price 150`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			application, err := openApp(ctx, cfg.Refresh.OnStartup)
			if err != nil {
				return err
			}
			defer application.Close()

			req := recommendation.SearchRequest{
				Query:   strings.Join(args, " "),
				Filters: recommendation.Filters{Category: category},
				Limit:   limit,
			}
			if cmd.Flags().Changed("min-price") {
				req.Filters.MinPrice = &minPrice
			}
			if cmd.Flags().Changed("max-price") {
				req.Filters.MaxPrice = &maxPrice
			}
			if cmd.Flags().Changed("threshold") {
				req.SimilarityThreshold = &threshold
			}

			spin := ui.NewSpinner("Searching...")
			spin.Start()
			resp, err := application.Engine.Search(ctx, req)
			spin.Stop()
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(resp)
			}

			ui.Section("Recommendation")
			ui.Text(resp.ResponseText)
			printProducts(resp.Products)

			ui.Section("Analysis")
			ui.KeyValue("Intent", resp.Intent.Primary)
			ui.KeyValue("Confidence", fmt.Sprintf("%s (%.2f)", resp.ContextAnalysis.Confidence, resp.Confidence))
			ui.KeyValue("Strategy", resp.ContextAnalysis.Strategy)
			ui.KeyValue("Source", resp.Diagnostics.ResponseSource)
			if resp.Diagnostics.Degraded {
				ui.Warning("Results are degraded: %s", resp.Diagnostics.DegradedReason)
			}
			if explain {
				ui.Section("Thought process")
				for i, step := range resp.ContextAnalysis.ThoughtProcess {
					ui.Text(fmt.Sprintf("%d. %s", i+1, step))
				}
				if len(resp.Diagnostics.Expansions) > 0 {
					ui.KeyValue("Expansions", strings.Join(resp.Diagnostics.Expansions, " | "))
				}
				ui.KeyValue("Search calls", resp.Diagnostics.SearchCalls)
				ui.KeyValue("Total", FormatDuration(time.Duration(resp.Diagnostics.TotalMs)*time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only recommend products in this category")
	cmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum price")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum price")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum products to return (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity (default from config)")
	cmd.Flags().BoolVar(&explain, "explain", false, "show the evaluator's thought process")

	return cmd
}

// newCompareCmd creates the compare subcommand.
func newCompareCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "compare <product-id> <product-id> [product-id...]",
		Short: "Compare specific products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			application, err := openApp(ctx, cfg.Refresh.OnStartup)
			if err != nil {
				return err
			}
			defer application.Close()

			spin := ui.NewSpinner("Comparing...")
			spin.Start()
			resp, err := application.Engine.Compare(ctx, recommendation.CompareRequest{
				Query:      query,
				ProductIDs: args,
			})
			spin.Stop()
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(resp)
			}

			ui.Section("Comparison")
			ui.Text(resp.ResponseText)
			printProducts(resp.Products)
			ui.KeyValue("Strategy", resp.Strategy)
			if len(resp.Missing) > 0 {
				ui.Warning("Not in the catalog: %s", strings.Join(resp.Missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "what to compare on (default: compare by name)")
	return cmd
}

// newSimilarCmd creates the similar subcommand.
func newSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <product-id>",
		Short: "Find products similar to a given product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			application, err := openApp(ctx, cfg.Refresh.OnStartup)
			if err != nil {
				return err
			}
			defer application.Close()

			resp, err := application.Engine.SimilarTo(ctx, args[0], limit)
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(resp)
			}
			ui.Section("Similar to " + resp.ProductID)
			if resp.Found == 0 {
				ui.Info("No similar products indexed yet")
				return nil
			}
			printProducts(resp.Products)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum products to return (default from config)")
	return cmd
}

// newStatsCmd creates the stats subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			application, err := openApp(ctx, cfg.Refresh.OnStartup)
			if err != nil {
				return err
			}
			defer application.Close()

			stats, err := application.Engine.Stats(ctx)
			if err != nil {
				return err
			}
			status := application.Engine.Status(ctx)

			if outputJSON {
				return ui.JSON(map[string]interface{}{"stats": stats, "status": status})
			}

			ui.Section("Index")
			ui.KeyValue("Indexed products", stats.IndexedProducts)
			ui.KeyValue("Embedding model", fmt.Sprintf("%s (%d dims)", stats.EmbeddingModel, stats.Dimension))
			if stats.IndexedProducts > 0 {
				ui.KeyValue("Price range", fmt.Sprintf("%s - %s (avg %s)",
					FormatPrice(stats.MinPrice), FormatPrice(stats.MaxPrice), FormatPrice(stats.AvgPrice)))
			}
			ui.Table([]string{"CATEGORY", "PRODUCTS", "MIN", "MAX", "AVG"}, categoryRows(stats.Categories))

			ui.Section("Status")
			ui.KeyValue("Vector index", reachable(status.IndexReachable))
			ui.KeyValue("Response cache", reachable(status.CacheReachable))
			ui.KeyValue("Generation backend", status.GenerationBackend)
			return nil
		},
	}
}

func printProducts(products []retrieval.ScoredProduct) {
	if len(products) == 0 {
		return
	}
	ui.Section("Products")
	rows := make([][]string, 0, len(products))
	for i, sp := range products {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			sp.Product.ID,
			sp.Product.Name,
			sp.Product.Category,
			FormatPrice(sp.Product.Price),
			fmt.Sprintf("%.3f", sp.Similarity),
		})
	}
	ui.Table([]string{"#", "ID", "NAME", "CATEGORY", "PRICE", "SIMILARITY"}, rows)
}

func categoryRows(categories map[string]recommendation.CategoryStats) [][]string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := categories[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(c.Count),
			FormatPrice(c.MinPrice),
			FormatPrice(c.MaxPrice),
			FormatPrice(c.AvgPrice),
		})
	}
	return rows
}

func reachable(ok bool) string {
	if ok {
		return "reachable"
	}
	return "unreachable"
}

// friendlyError strips the error taxonomy prefix for validation and
// not-found errors, which are the user's to fix.
func friendlyError(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && (de.Type == domain.ErrorTypeValidation || de.Type == domain.ErrorTypeNotFound) {
		return de.Message
	}
	return err.Error()
}
