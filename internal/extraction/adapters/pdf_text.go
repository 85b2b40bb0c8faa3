package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

const (
	extractionCmdTimeout  = 30 * time.Second
	largePdfPageThreshold = 100
	pdfBatchPages         = 50
)

// PdfTextAdapter extracts text from PDFs using the `pdftotext` binary
// (poppler-utils). Large documents are extracted in fixed-size page
// batches to bound memory.
type PdfTextAdapter struct{}

func (PdfTextAdapter) Strategy() extraction.Strategy { return extraction.StrategyPdfText }
func (PdfTextAdapter) Name() string                  { return "pdf_text" }

func (PdfTextAdapter) HealthCheck(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "pdftotext", "-v").CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode() == 99, nil
		}
		return false, nil
	}
	_ = out
	return true, nil
}

func (PdfTextAdapter) Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (extraction.Result, error) {
	if len(data) == 0 {
		return extraction.Result{}, matricerr.Invalid("cannot extract text from empty PDF data")
	}
	if len(data) < 4 || !bytes.Equal(data[0:4], []byte("%PDF")) {
		return extraction.Result{}, matricerr.Invalid("file %q is not a valid PDF (missing %%PDF header)", filename)
	}

	tmp, err := os.CreateTemp("", "matric-pdf-*.pdf")
	if err != nil {
		return extraction.Result{}, matricerr.Internal("failed to create temp file: %v", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return extraction.Result{}, matricerr.Internal("failed to write temp file: %v", err)
	}
	tmp.Close()
	path := tmp.Name()

	metadata := map[string]any{}
	if infoOut, err := runWithTimeout(ctx, extractionCmdTimeout, "pdfinfo", path); err == nil {
		metadata = parsePdfinfo(infoOut)
	}

	pages := pageCount(metadata)
	var text string
	if pages > largePdfPageThreshold {
		var sb strings.Builder
		for start := 1; start <= pages; start += pdfBatchPages {
			end := start + pdfBatchPages - 1
			if end > pages {
				end = pages
			}
			chunk, err := runWithTimeout(ctx, extractionCmdTimeout, "pdftotext",
				"-f", strconv.Itoa(start), "-l", strconv.Itoa(end), path, "-")
			if err != nil {
				return extraction.Result{}, err
			}
			sb.WriteString(chunk)
		}
		text = sb.String()
	} else {
		text, err = runWithTimeout(ctx, extractionCmdTimeout, "pdftotext", path, "-")
		if err != nil {
			return extraction.Result{}, err
		}
	}

	if len(strings.TrimSpace(text)) < 50 && pages > 0 {
		metadata["needs_ocr"] = true
	}
	metadata["char_count"] = len(text)
	metadata["line_count"] = strings.Count(text, "\n") + 1

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}
	return extraction.Result{ExtractedText: &text, Metadata: metaJSON}, nil
}

func runWithTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", matricerr.Internal("external command %q timed out after %s", name, timeout)
		}
		return "", matricerr.Internal("command %q failed: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func parsePdfinfo(output string) map[string]any {
	meta := map[string]any{}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), " ", "_"))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if key == "pages" {
			if n, err := strconv.Atoi(value); err == nil {
				meta[key] = n
				continue
			}
		}
		meta[key] = value
	}
	return meta
}

func pageCount(meta map[string]any) int {
	if v, ok := meta["pages"]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
