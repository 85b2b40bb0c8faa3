// Package extraction implements the extraction adapter kernel: a uniform,
// replaceable content-extraction contract with a strict I/O surface.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"matric/internal/matricerr"
)

// Strategy is the closed set of extraction backends.
type Strategy string

const (
	StrategyTextNative      Strategy = "text_native"
	StrategyPdfText         Strategy = "pdf_text"
	StrategyPdfOcr          Strategy = "pdf_ocr"
	StrategyVision          Strategy = "vision"
	StrategyAudioTranscribe Strategy = "audio_transcribe"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyTextNative, StrategyPdfText, StrategyPdfOcr, StrategyVision, StrategyAudioTranscribe:
		return Strategy(s), nil
	default:
		return "", matricerr.Invalid("invalid extraction strategy: %q", s)
	}
}

// Result is the uniform output of every adapter. Exactly one of
// ExtractedText / AIDescription is typically populated, depending on the
// backend, but neither is required to be.
type Result struct {
	ExtractedText *string         `json:"extracted_text,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
	AIDescription *string         `json:"ai_description,omitempty"`
	PreviewData   []byte          `json:"preview_data,omitempty"`
}

// Adapter is the narrow contract every extraction backend implements.
type Adapter interface {
	Strategy() Strategy
	Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (Result, error)
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}

// Registry maps a Strategy to exactly one registered Adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Strategy]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[Strategy]Adapter{}}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Strategy()] = a
}

func (r *Registry) HasAdapter(s Strategy) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[s]
	return ok
}

func (r *Registry) Extract(ctx context.Context, s Strategy, data []byte, filename, mimeType string, config json.RawMessage) (Result, error) {
	r.mu.RLock()
	a, ok := r.adapters[s]
	r.mu.RUnlock()
	if !ok {
		return Result{}, matricerr.Invalid("no adapter registered for strategy: %s", s)
	}
	return a.Extract(ctx, data, filename, mimeType, config)
}

// emptyMetadata is the zero-value metadata object adapters fall back to.
func emptyMetadata() json.RawMessage { return json.RawMessage(`{}`) }

func mergeMetadata(base json.RawMessage, extra map[string]any) (json.RawMessage, error) {
	m := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &m); err != nil {
			return nil, fmt.Errorf("merge metadata: %w", err)
		}
	}
	for k, v := range extra {
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return out, nil
}
