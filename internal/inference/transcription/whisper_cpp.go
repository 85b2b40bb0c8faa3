// Package transcription provides concrete TranscriptionBackend
// implementations for the extraction adapter kernel's audio path.
package transcription

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"matric/internal/extraction/adapters"
	"matric/internal/matricerr"
)

// WhisperCppBackend transcribes locally via whisper.cpp's Go bindings,
// loading a single ggml model at construction time.
type WhisperCppBackend struct {
	model whisper.Model
}

func NewWhisperCppBackend(modelPath string) (*WhisperCppBackend, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, matricerr.Internal("failed to load whisper model: %v", err)
	}
	return &WhisperCppBackend{model: model}, nil
}

func (b *WhisperCppBackend) HealthCheck(ctx context.Context) (bool, error) {
	return b.model != nil, nil
}

func (b *WhisperCppBackend) Transcribe(ctx context.Context, data []byte, mimeType string, language *string) (adapters.TranscriptionResult, error) {
	samples, sampleRate, err := decodeWAV(data)
	if err != nil {
		return adapters.TranscriptionResult{}, matricerr.Invalid("audio decode failed: %v", err)
	}

	wctx, err := b.model.NewContext()
	if err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("failed to create whisper context: %v", err)
	}
	if language != nil {
		_ = wctx.SetLanguage(*language)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return adapters.TranscriptionResult{}, matricerr.Internal("whisper processing failed: %v", err)
	}

	var segments []adapters.TranscriptionSegment
	var fullText bytes.Buffer
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		segments = append(segments, adapters.TranscriptionSegment{
			StartSecs: seg.Start.Seconds(),
			EndSecs:   seg.End.Seconds(),
			Text:      seg.Text,
		})
		fullText.WriteString(seg.Text)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	text := fullText.String()
	return adapters.TranscriptionResult{
		FullText:     text,
		Segments:     segments,
		DurationSecs: &duration,
	}, nil
}

// decodeWAV reads raw PCM audio, mixing stereo to mono, matching the
// cmd/whisper-go reference decoder.
func decodeWAV(data []byte) ([]float32, uint32, error) {
	r := bytes.NewReader(data)
	var header struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid wav file")
	}

	audioData := make([]byte, header.Subchunk2Size)
	if _, err := r.Read(audioData); err != nil {
		return nil, 0, fmt.Errorf("read audio data: %w", err)
	}

	var samples []float32
	switch header.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(audioData); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(audioData[i : i+2]))
			samples = append(samples, float32(sample)/32768.0)
		}
	case 32:
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := binary.LittleEndian.Uint32(audioData[i : i+4])
			samples = append(samples, math.Float32frombits(bits))
		}
	default:
		return nil, 0, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	if header.NumChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}

	return samples, header.SampleRate, nil
}
