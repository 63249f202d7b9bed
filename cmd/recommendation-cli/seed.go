package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// catalogFileDoc is the YAML layout accepted by seed and --catalog.
//
//	products:
//	  - id: trail-shoe
//	    name: Trail Running Shoe
//	    category: Shoes
//	    price: 120
//	    tags: [running, outdoor]
type catalogFileDoc struct {
	Products []catalogEntry `yaml:"products"`
}

// catalogEntry mirrors catalog.Product; Active defaults to true when omitted.
type catalogEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Brand       string   `yaml:"brand"`
	Price       float64  `yaml:"price"`
	Tags        []string `yaml:"tags"`
	Active      *bool    `yaml:"active"`
}

// loadCatalog reads and validates a YAML catalog. Duplicate ids are rejected
// so a typo cannot silently overwrite a product.
func loadCatalog(path string) ([]catalog.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]catalog.Product, error) {
	var doc catalogFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(doc.Products))
	products := make([]catalog.Product, 0, len(doc.Products))
	for i, e := range doc.Products {
		p := catalog.Product{
			ID:          strings.TrimSpace(e.ID),
			Name:        strings.TrimSpace(e.Name),
			Description: e.Description,
			Category:    strings.TrimSpace(e.Category),
			Brand:       strings.TrimSpace(e.Brand),
			Price:       e.Price,
			Tags:        e.Tags,
			Active:      e.Active == nil || *e.Active,
			UpdatedAt:   now,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i+1, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = true
		products = append(products, p)
	}
	return products, nil
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd() *cobra.Command {
	var (
		file    string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products from a YAML file into the SQL catalog",
		Long: `Seed upserts every product in a YAML file into the sqlite or postgres
catalog. With --refresh, embeddings for the seeded products are refreshed
afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			products, err := loadCatalog(file)
			if err != nil {
				return err
			}

			application, err := app.New(ctx, cfg, logger, app.Options{SkipStartupRefresh: true})
			if err != nil {
				return err
			}
			defer application.Close()

			if application.SQLStore == nil {
				return fmt.Errorf("seed requires the sqlite or postgres database driver, got %s", cfg.Database.Driver)
			}

			bar := ui.NewProgressBar(int64(len(products)), "Seeding")
			for i, p := range products {
				if err := application.SQLStore.Upsert(ctx, p); err != nil {
					bar.Finish()
					return fmt.Errorf("upsert %s: %w", p.ID, err)
				}
				bar.Set(int64(i + 1))
			}
			bar.Finish()

			result := map[string]interface{}{"seeded": len(products)}
			ui.Success("Seeded %d products into %s", len(products), cfg.Database.Driver)

			if refresh {
				ids := make([]string, len(products))
				for i, p := range products {
					ids[i] = p.ID
				}
				report, err := runRefresh(ctx, application, recommendation.RefreshRequest{ProductIDs: ids})
				if err != nil {
					return err
				}
				result["refresh"] = report
			}
			return ui.JSON(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog file (required)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh embeddings for the seeded products")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
