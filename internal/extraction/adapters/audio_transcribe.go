package adapters

import (
	"context"
	"encoding/json"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

// TranscriptionSegment is one timestamped utterance within a transcript.
type TranscriptionSegment struct {
	StartSecs float64 `json:"start_secs"`
	EndSecs   float64 `json:"end_secs"`
	Text      string  `json:"text"`
}

// TranscriptionResult is a backend's full transcription output.
type TranscriptionResult struct {
	FullText       string
	Segments       []TranscriptionSegment
	Language       *string
	DurationSecs   *float64
}

// TranscriptionBackend transcribes audio bytes to text plus segments.
// WhisperCppBackend (local bindings) and HTTPWhisperBackend (a
// Whisper-compatible HTTP endpoint) both satisfy this contract.
type TranscriptionBackend interface {
	Transcribe(ctx context.Context, data []byte, mimeType string, language *string) (TranscriptionResult, error)
	HealthCheck(ctx context.Context) (bool, error)
}

// AudioTranscribeAdapter transcribes audio via a pluggable TranscriptionBackend.
type AudioTranscribeAdapter struct {
	Backend TranscriptionBackend
}

func NewAudioTranscribeAdapter(backend TranscriptionBackend) *AudioTranscribeAdapter {
	return &AudioTranscribeAdapter{Backend: backend}
}

func (*AudioTranscribeAdapter) Strategy() extraction.Strategy { return extraction.StrategyAudioTranscribe }
func (*AudioTranscribeAdapter) Name() string                  { return "audio_transcribe" }

func (a *AudioTranscribeAdapter) HealthCheck(ctx context.Context) (bool, error) {
	return a.Backend.HealthCheck(ctx)
}

func (a *AudioTranscribeAdapter) Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (extraction.Result, error) {
	if len(data) == 0 {
		return extraction.Result{}, matricerr.Invalid("cannot transcribe empty audio data")
	}

	var language *string
	if len(config) > 0 {
		var cfg struct {
			Language string `json:"language"`
		}
		if err := json.Unmarshal(config, &cfg); err == nil && cfg.Language != "" {
			language = &cfg.Language
		}
	}

	result, err := a.Backend.Transcribe(ctx, data, mimeType, language)
	if err != nil {
		return extraction.Result{}, matricerr.Inference(err, "transcription backend failed")
	}

	segmentsJSON := make([]map[string]any, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segmentsJSON = append(segmentsJSON, map[string]any{
			"start_secs": seg.StartSecs,
			"end_secs":   seg.EndSecs,
			"text":       seg.Text,
		})
	}
	metadata := map[string]any{
		"segment_count": len(result.Segments),
		"segments":      segmentsJSON,
	}
	if result.Language != nil {
		metadata["detected_language"] = *result.Language
	}
	if result.DurationSecs != nil {
		metadata["duration_secs"] = *result.DurationSecs
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}
	return extraction.Result{ExtractedText: &result.FullText, Metadata: metaJSON}, nil
}
