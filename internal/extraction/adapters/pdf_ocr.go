package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

// PdfOcrAdapter renders scanned PDF pages to PNG (pdftoppm) then OCRs each
// page with tesseract, concatenating with an explicit page-break marker.
// It runs when an extraction job's payload names the pdf_ocr strategy; the
// metadata.needs_ocr flag set by PdfTextAdapter does not route a PDF here.
type PdfOcrAdapter struct{}

func (PdfOcrAdapter) Strategy() extraction.Strategy { return extraction.StrategyPdfOcr }
func (PdfOcrAdapter) Name() string                  { return "pdf_ocr" }

func (PdfOcrAdapter) HealthCheck(ctx context.Context) (bool, error) {
	pdftoppmOK := commandAvailable(ctx, "pdftoppm", "-v")
	tesseractOK := commandAvailable(ctx, "tesseract", "--version")
	return pdftoppmOK && tesseractOK, nil
}

func commandAvailable(ctx context.Context, name string, args ...string) bool {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode() == 99
		}
		return false
	}
	return true
}

func (PdfOcrAdapter) Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (extraction.Result, error) {
	if len(data) == 0 {
		return extraction.Result{}, matricerr.Invalid("cannot OCR empty PDF data")
	}
	if len(data) < 4 || string(data[0:4]) != "%PDF" {
		return extraction.Result{}, matricerr.Invalid("file %q is not a valid PDF (missing %%PDF header)", filename)
	}

	dpi, language := 300, "eng"
	if len(config) > 0 {
		var cfg struct {
			DPI      *int   `json:"dpi"`
			Language string `json:"language"`
		}
		if err := json.Unmarshal(config, &cfg); err == nil {
			if cfg.DPI != nil {
				dpi = *cfg.DPI
			}
			if cfg.Language != "" {
				language = cfg.Language
			}
		}
	}

	pdfFile, err := os.CreateTemp("", "matric-ocr-*.pdf")
	if err != nil {
		return extraction.Result{}, matricerr.Internal("failed to create temp file: %v", err)
	}
	defer os.Remove(pdfFile.Name())
	if _, err := pdfFile.Write(data); err != nil {
		pdfFile.Close()
		return extraction.Result{}, matricerr.Internal("failed to write temp file: %v", err)
	}
	pdfFile.Close()

	imgDir, err := os.MkdirTemp("", "matric-ocr-pages-*")
	if err != nil {
		return extraction.Result{}, matricerr.Internal("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(imgDir)
	imgPrefix := filepath.Join(imgDir, "page")

	if _, err := runWithTimeout(ctx, extractionCmdTimeout*3, "pdftoppm", "-png", "-r", strconv.Itoa(dpi), pdfFile.Name(), imgPrefix); err != nil {
		return extraction.Result{}, err
	}

	entries, err := os.ReadDir(imgDir)
	if err != nil {
		return extraction.Result{}, matricerr.Internal("failed to read temp dir: %v", err)
	}
	var pageImages []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			pageImages = append(pageImages, filepath.Join(imgDir, e.Name()))
		}
	}
	sort.Strings(pageImages)

	if len(pageImages) == 0 {
		meta, _ := json.Marshal(map[string]any{
			"ocr_pages": 0, "dpi": dpi, "language": language,
			"warning": "No pages rendered from PDF",
		})
		empty := ""
		return extraction.Result{ExtractedText: &empty, Metadata: meta}, nil
	}

	pageTexts := make([]string, 0, len(pageImages))
	for i, imgPath := range pageImages {
		outputBase := filepath.Join(imgDir, fmt.Sprintf("ocr_%d", i))
		if _, err := runWithTimeout(ctx, extractionCmdTimeout, "tesseract", imgPath, outputBase, "-l", language); err != nil {
			pageTexts = append(pageTexts, fmt.Sprintf("[OCR failed for page %d]", i+1))
			continue
		}
		text, err := os.ReadFile(outputBase + ".txt")
		if err != nil {
			pageTexts = append(pageTexts, fmt.Sprintf("[OCR failed for page %d]", i+1))
			continue
		}
		pageTexts = append(pageTexts, string(text))
	}

	fullText := strings.Join(pageTexts, "\n\n--- Page Break ---\n\n")
	meta, err := json.Marshal(map[string]any{
		"ocr_pages":  len(pageImages),
		"dpi":        dpi,
		"language":   language,
		"char_count": len(fullText),
		"line_count": strings.Count(fullText, "\n") + 1,
		"engine":     "tesseract",
	})
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}
	return extraction.Result{ExtractedText: &fullText, Metadata: meta}, nil
}
