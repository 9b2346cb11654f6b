// Package ingest turns input documents into page images ready for OCR.
//
// PDF inputs are rasterized one page per image using pdftoppm
// (poppler-utils); plain image inputs pass through with their pixel
// dimensions decoded. Multi-page containers never reach the OCR layer.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/gleanhq/glean/internal/ocr"
)

// DefaultDPI is the rasterization resolution for PDF pages. 300dpi keeps
// small print legible for OCR without ballooning image size.
const DefaultDPI = 300

// Options configures document loading.
type Options struct {
	DPI        int // 0 = DefaultDPI
	MaxWorkers int // 0 = NumCPU, applies to PDF page rendering
	Logger     *slog.Logger
}

// LoadDocument reads one input file and returns its pages as images.
// Supported inputs are PDF, PNG, and JPEG; anything else is an error.
func LoadDocument(ctx context.Context, path string, opts Options) ([]ocr.PageImage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input not found: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(ctx, path, opts)
	case ".png", ".jpg", ".jpeg":
		return loadImage(path)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", filepath.Ext(path))
	}
}

// loadImage reads a single-page image input and decodes its dimensions.
func loadImage(path string) ([]ocr.PageImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	return []ocr.PageImage{{
		Data:   data,
		MIME:   mimeForFormat(format),
		Page:   1,
		Width:  cfg.Width,
		Height: cfg.Height,
	}}, nil
}

// loadPDF rasterizes every page of a PDF concurrently.
func loadPDF(ctx context.Context, path string, opts Options) ([]ocr.PageImage, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages: %s", filepath.Base(path))
	}

	log.Debug("rasterizing PDF", "file", filepath.Base(path), "pages", pageCount, "dpi", dpi)

	type result struct {
		page int
		img  ocr.PageImage
		err  error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(page int) {
			defer func() { <-sem }() // release

			if err := ctx.Err(); err != nil {
				results <- result{page: page, err: err}
				return
			}
			img, err := renderPage(path, page, dpi)
			results <- result{page: page, img: img, err: err}
		}(page)
	}

	pages := make([]ocr.PageImage, pageCount)
	var firstErr error
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to render page %d: %w", r.page, r.err)
			}
			continue
		}
		pages[r.page-1] = r.img
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return pages, nil
}

// renderPage rasterizes a single PDF page using pdftoppm (poppler-utils).
func renderPage(pdfPath string, page, dpi int) (ocr.PageImage, error) {
	tmpDir, err := os.MkdirTemp("", "glean-page-*")
	if err != nil {
		return ocr.PageImage{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -singlefile suppresses the page number suffix on the output name.
	pageStr := fmt.Sprintf("%d", page)
	cmd := exec.Command("pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return ocr.PageImage{}, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return ocr.PageImage{}, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ocr.PageImage{}, fmt.Errorf("failed to decode rendered page: %w", err)
	}

	return ocr.PageImage{
		Data:   data,
		MIME:   "image/png",
		Page:   page,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
