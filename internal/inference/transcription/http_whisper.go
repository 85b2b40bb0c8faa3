package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"matric/internal/extraction/adapters"
	"matric/internal/matricerr"
)

// HTTPWhisperBackend calls a Whisper-compatible HTTP endpoint (OpenAI's
// /v1/audio/transcriptions shape), the non-local alternative to
// WhisperCppBackend.
type HTTPWhisperBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPWhisperBackend(baseURL string) *HTTPWhisperBackend {
	return &HTTPWhisperBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// FromEnv builds a backend from WHISPER_BASE_URL, or returns nil if unset.
func FromEnv() *HTTPWhisperBackend {
	base := os.Getenv("WHISPER_BASE_URL")
	if base == "" {
		return nil
	}
	return NewHTTPWhisperBackend(base)
}

func (b *HTTPWhisperBackend) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return false, nil
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500, nil
}

type whisperSegmentResponse struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperTranscriptionResponse struct {
	Text     string                   `json:"text"`
	Language string                   `json:"language"`
	Duration float64                  `json:"duration"`
	Segments []whisperSegmentResponse `json:"segments"`
}

func (b *HTTPWhisperBackend) Transcribe(ctx context.Context, data []byte, mimeType string, language *string) (adapters.TranscriptionResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio")
	if err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("build multipart request: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("write audio data: %v", err)
	}
	if language != nil {
		_ = writer.WriteField("language", *language)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return adapters.TranscriptionResult{}, matricerr.External(err, "whisper endpoint request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return adapters.TranscriptionResult{}, matricerr.External(nil, "whisper endpoint returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed whisperTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("decode whisper response: %v", err)
	}

	segments := make([]adapters.TranscriptionSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, adapters.TranscriptionSegment{StartSecs: s.Start, EndSecs: s.End, Text: s.Text})
	}

	result := adapters.TranscriptionResult{FullText: parsed.Text, Segments: segments}
	if parsed.Language != "" {
		result.Language = &parsed.Language
	}
	if parsed.Duration > 0 {
		result.DurationSecs = &parsed.Duration
	}
	return result, nil
}
