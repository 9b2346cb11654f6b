package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gleanhq/glean/internal/config"
	"github.com/gleanhq/glean/internal/docmodel"
	"github.com/gleanhq/glean/internal/extract"
	"github.com/gleanhq/glean/internal/home"
	"github.com/gleanhq/glean/internal/ingest"
	"github.com/gleanhq/glean/internal/locate"
	"github.com/gleanhq/glean/internal/ocr"
	"github.com/gleanhq/glean/internal/output"
	"github.com/gleanhq/glean/internal/pipeline"
	"github.com/gleanhq/glean/internal/profile"
	"github.com/gleanhq/glean/internal/validate"
)

var (
	extractTier    string
	extractType    string
	extractFields  []string
	extractBackend string
	extractSave    bool
	extractWorkers int
)

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract structured fields from documents",
	Long: `Extract structured fields from one or more documents.

Inputs may be PDFs or page images (PNG, JPEG). Each document runs through
OCR, layout analysis, generative extraction, field location, and
validation; the result is printed in the configured output format.

Examples:
  glean extract invoice.pdf
  glean extract --tier HIGH --type invoice scan.png
  glean extract --fields po_number,gl_code *.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		h, err := getHome()
		if err != nil {
			return err
		}

		profiles, err := loadProfiles(cfg, h)
		if err != nil {
			return err
		}

		providers, err := buildOCRProviders(ctx, cfg)
		if err != nil {
			return err
		}
		engine := ocr.NewEngine(ocr.EngineConfig{Providers: providers, Logger: logger})

		backend, err := buildBackend(cfg)
		if err != nil {
			return err
		}
		extractor := extract.New(extract.Config{
			Backend:  backend,
			Profiles: profiles,
			Logger:   logger,
		})

		orch := pipeline.New(pipeline.Config{
			Engine:    engine,
			Extractor: extractor,
			Profiles:  profiles,
			Locator: locate.New(locate.Config{
				MinSimilarity:  cfg.Locator.MinSimilarity,
				SubsetMinWords: cfg.Locator.SubsetMinWords,
				MaxSpanSlack:   cfg.Locator.MaxSpanSlack,
			}),
			Validator: validate.New(validate.Config{
				ArithmeticTolerance: cfg.Validator.ArithmeticTolerance,
				UnlocatedCeiling:    cfg.Validator.UnlocatedCeiling,
				Logger:              logger,
			}),
			Logger: logger,
		})

		tierName := extractTier
		if tierName == "" {
			tierName = cfg.Defaults.Tier
		}
		tier := docmodel.ParseTier(tierName)

		typeHint := docmodel.DocTypeUnknown
		if extractType != "" {
			typeHint = docmodel.ParseDocumentType(extractType)
		}

		workers := extractWorkers
		if workers <= 0 {
			workers = cfg.Defaults.MaxWorkers
		}
		if workers <= 0 {
			workers = min(runtime.NumCPU(), 4)
		}

		results, err := processAll(ctx, orch, cfg, logger, args, tier, typeHint, workers)
		if err != nil {
			return err
		}

		if extractSave {
			if err := saveResults(h, results); err != nil {
				return err
			}
		}

		if len(results) == 1 {
			return output.Output(results[0])
		}
		return output.Output(results)
	},
}

// processAll runs the documents through the pipeline with a bounded worker
// pool. Results keep input order; the first error aborts the run.
func processAll(ctx context.Context, orch *pipeline.Orchestrator, cfg *config.Config, logger *slog.Logger, paths []string, tier docmodel.Tier, typeHint docmodel.DocumentType, workers int) ([]*docmodel.ExtractionResult, error) {
	results := make([]*docmodel.ExtractionResult, len(paths))
	errs := make([]error, len(paths))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		sem <- struct{}{} // acquire
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }() // release

			pages, err := ingest.LoadDocument(ctx, path, ingest.Options{
				DPI:    cfg.Ingest.DPI,
				Logger: logger,
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return
			}

			result, err := orch.Process(ctx, &pipeline.Request{
				Images:       pages,
				Tier:         tier,
				TypeHint:     typeHint,
				CustomFields: extractFields,
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return
			}
			results[i] = result
		}(i, path)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// saveResults writes each result to the home results directory as JSON.
func saveResults(h *home.Dir, results []*docmodel.ExtractionResult) error {
	for _, r := range results {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(h.ResultPath(r.ID), data, 0o644); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}
	return nil
}

// loadProfiles returns the built-in profile registry with any user override
// file applied.
func loadProfiles(cfg *config.Config, h *home.Dir) (*profile.Registry, error) {
	profiles := profile.NewRegistry()

	path := cfg.ProfilesPath
	if path == "" && h.ProfilesExist() {
		path = h.ProfilesPath()
	}
	if path != "" {
		if err := profiles.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	}
	return profiles, nil
}

// buildOCRProviders instantiates the enabled providers in the configured
// order.
func buildOCRProviders(ctx context.Context, cfg *config.Config) ([]ocr.Provider, error) {
	names := cfg.Defaults.OCRProviders
	if len(names) == 0 {
		for name := range cfg.EnabledOCRProviders() {
			names = append(names, name)
		}
	}

	var providers []ocr.Provider
	for _, name := range names {
		pcfg, ok := cfg.GetOCRProvider(name)
		if !ok {
			return nil, fmt.Errorf("unknown OCR provider: %s", name)
		}
		if !pcfg.Enabled {
			continue
		}

		switch pcfg.Type {
		case "tesseract":
			providers = append(providers, ocr.NewTesseractProvider(ocr.TesseractConfig{
				Languages: pcfg.Languages,
			}))
		case "docai":
			p, err := ocr.NewDocAIProvider(ctx, ocr.DocAIConfig{
				ProjectID:       pcfg.ProjectID,
				Location:        pcfg.Location,
				ProcessorID:     pcfg.ProcessorID,
				CredentialsFile: pcfg.CredentialsFile,
				RateLimit:       pcfg.RateLimit,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			providers = append(providers, p)
		case "remote":
			providers = append(providers, ocr.NewRemoteProvider(ocr.RemoteConfig{
				BaseURL:   pcfg.BaseURL,
				RateLimit: pcfg.RateLimit,
			}))
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", name, pcfg.Type)
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no OCR providers enabled")
	}
	return providers, nil
}

// buildBackend instantiates the configured extraction backend.
func buildBackend(cfg *config.Config) (extract.Backend, error) {
	name := extractBackend
	if name == "" {
		name = cfg.Defaults.Backend
	}

	bcfg, ok := cfg.GetBackend(name)
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}

	switch bcfg.Type {
	case "openai":
		return extract.NewOpenAIBackend(extract.OpenAIConfig{
			APIKey:    cfg.ResolveAPIKey(name),
			Model:     bcfg.Model,
			MaxTokens: bcfg.MaxTokens,
			RateLimit: bcfg.RateLimit,
		}), nil
	case "gemini":
		return extract.NewGeminiBackend(extract.GeminiConfig{
			APIKey:    cfg.ResolveAPIKey(name),
			Model:     bcfg.Model,
			RateLimit: bcfg.RateLimit,
		}), nil
	default:
		return nil, fmt.Errorf("backend %s: unknown type %q", name, bcfg.Type)
	}
}

func init() {
	extractCmd.Flags().StringVarP(&extractTier, "tier", "t", "", "accuracy tier: FAST, BALANCED, or HIGH")
	extractCmd.Flags().StringVar(&extractType, "type", "", "document type hint (invoice, receipt, business_card, form, contract)")
	extractCmd.Flags().StringSliceVar(&extractFields, "fields", nil, "additional field names to extract")
	extractCmd.Flags().StringVar(&extractBackend, "backend", "", "extraction backend (default from config)")
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "save results to the home results directory")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "max concurrent documents (default from config)")

	rootCmd.AddCommand(extractCmd)
}
