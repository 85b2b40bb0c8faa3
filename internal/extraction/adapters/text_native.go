package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

// TextNativeAdapter is the identity extraction path: UTF-8 bytes pass
// through unchanged, with a charset fallback for mislabeled text and an
// HTML-to-markdown pass (via go-readability) when mime_type is text/html.
type TextNativeAdapter struct{}

func (TextNativeAdapter) Strategy() extraction.Strategy { return extraction.StrategyTextNative }
func (TextNativeAdapter) Name() string                  { return "text_native" }

func (TextNativeAdapter) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (TextNativeAdapter) Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (extraction.Result, error) {
	if len(data) == 0 {
		return extraction.Result{}, matricerr.Invalid("cannot extract text from empty data")
	}

	if strings.Contains(strings.ToLower(mimeType), "html") {
		return extractHTML(data, filename)
	}

	text, err := decodeText(data, config)
	if err != nil {
		return extraction.Result{}, matricerr.Invalid("charset decode failed: %v", err)
	}

	meta, err := json.Marshal(map[string]any{
		"char_count": len(text),
		"line_count": strings.Count(text, "\n") + 1,
	})
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}

	return extraction.Result{ExtractedText: &text, Metadata: meta}, nil
}

func extractHTML(data []byte, filename string) (extraction.Result, error) {
	html := string(data)
	base, _ := url.Parse("about:" + filename)

	articleHTML := html
	title := ""
	usedReadable := false
	if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
		usedReadable = true
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(""))
	if err != nil {
		return extraction.Result{}, matricerr.External(err, "html to markdown conversion failed")
	}
	if title != "" && !strings.HasPrefix(strings.TrimLeft(md, "\n"), "# ") {
		md = "# " + title + "\n\n" + md
	}
	md = strings.TrimSpace(md)

	meta, err := json.Marshal(map[string]any{
		"used_readable": usedReadable,
		"title":         title,
		"char_count":    len(md),
	})
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}
	return extraction.Result{ExtractedText: &md, Metadata: meta}, nil
}

// decodeText returns UTF-8 text from data. When config.charset names a
// charset other than UTF-8, the bytes are decoded from that charset;
// otherwise they are returned unchanged.
func decodeText(data []byte, config json.RawMessage) (string, error) {
	if len(config) > 0 {
		var cfg struct {
			Charset string `json:"charset"`
		}
		if err := json.Unmarshal(config, &cfg); err == nil && cfg.Charset != "" && !strings.EqualFold(cfg.Charset, "utf-8") {
			r, err := charset.NewReaderLabel(cfg.Charset, bytes.NewReader(data))
			if err != nil {
				return "", err
			}
			decoded, err := io.ReadAll(r)
			if err != nil {
				return "", err
			}
			return string(decoded), nil
		}
	}
	return string(data), nil
}
