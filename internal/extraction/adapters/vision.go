package adapters

import (
	"context"
	"encoding/json"
	"strings"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

// VisionBackend describes an image to text. vision.AnthropicBackend and
// vision.GeminiBackend are the two real implementations wired by
// cmd/matricd; both satisfy this same narrow contract.
type VisionBackend interface {
	DescribeImage(ctx context.Context, data []byte, mimeType string, prompt *string) (string, error)
	ModelName() string
	HealthCheck(ctx context.Context) (bool, error)
}

// VisionAdapter describes image content via a pluggable VisionBackend.
type VisionAdapter struct {
	Backend VisionBackend
}

func NewVisionAdapter(backend VisionBackend) *VisionAdapter { return &VisionAdapter{Backend: backend} }

func (*VisionAdapter) Strategy() extraction.Strategy { return extraction.StrategyVision }
func (*VisionAdapter) Name() string                  { return "vision" }

func (a *VisionAdapter) HealthCheck(ctx context.Context) (bool, error) {
	return a.Backend.HealthCheck(ctx)
}

func (a *VisionAdapter) Extract(ctx context.Context, data []byte, filename, mimeType string, config json.RawMessage) (extraction.Result, error) {
	if len(data) == 0 {
		return extraction.Result{}, matricerr.Invalid("cannot extract vision description from empty image data")
	}

	var customPrompt *string
	if len(config) > 0 {
		var cfg struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(config, &cfg); err == nil && cfg.Prompt != "" {
			customPrompt = &cfg.Prompt
		}
	}

	description, err := a.Backend.DescribeImage(ctx, data, mimeType, customPrompt)
	if err != nil {
		return extraction.Result{}, matricerr.Inference(err, "vision backend failed to describe image")
	}

	metadata := map[string]any{
		"model":      a.Backend.ModelName(),
		"filename":   filename,
		"mime_type":  mimeType,
		"size_bytes": len(data),
	}
	if w, h, ok := detectImageDimensions(data, mimeType); ok {
		metadata["width"] = w
		metadata["height"] = h
	}
	if exif, ok := extractEXIF(data); ok {
		metadata["exif"] = exif
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return extraction.Result{}, matricerr.Internal("marshal metadata: %v", err)
	}
	return extraction.Result{AIDescription: &description, Metadata: metaJSON}, nil
}

// detectImageDimensions parses the image container header directly, since
// pulling in a full decode just to read dimensions would decode pixel data
// this adapter never needs.
func detectImageDimensions(data []byte, mimeType string) (width, height uint32, ok bool) {
	mime := strings.ToLower(mimeType)

	if strings.Contains(mime, "png") && len(data) >= 24 && string(data[0:8]) == "\x89PNG\r\n\x1a\n" {
		width = be32(data[16:20])
		height = be32(data[20:24])
		return width, height, true
	}

	if strings.Contains(mime, "jpeg") || strings.Contains(mime, "jpg") {
		for i := 0; i+8 < len(data); i++ {
			if data[i] == 0xFF && data[i+1] == 0xC0 {
				height = uint32(be16(data[i+5 : i+7]))
				width = uint32(be16(data[i+7 : i+9]))
				return width, height, true
			}
		}
	}

	if strings.Contains(mime, "gif") && len(data) >= 10 && string(data[0:3]) == "GIF" {
		width = uint32(le16(data[6:8]))
		height = uint32(le16(data[8:10]))
		return width, height, true
	}

	if strings.Contains(mime, "webp") && len(data) >= 30 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		if string(data[12:16]) == "VP8 " {
			width = uint32(le16(data[26:28])) & 0x3FFF
			height = uint32(le16(data[28:30])) & 0x3FFF
			return width, height, true
		}
	}

	return 0, 0, false
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// extractEXIF reports whether a JPEG carries an EXIF (APP1) segment,
// returning its presence and segment length. The segment is not parsed:
// camera, GPS and exposure settings are not extracted. Returns ok=false when
// the first APP1 segment is not EXIF or none appears before start-of-scan.
func extractEXIF(data []byte) (map[string]any, bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, false
	}
	for i := 2; i+4 < len(data); {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xE1 { // APP1, where EXIF lives
			segLen := int(be16(data[i+2 : i+4]))
			if i+4+6 <= len(data) && string(data[i+4:i+4+6]) == "Exif\x00\x00" {
				// Full TIFF/IFD parsing is out of scope for the kernel; surface
				// presence and the raw segment length so callers know EXIF exists.
				return map[string]any{"present": true, "segment_bytes": segLen}, true
			}
			return nil, false
		}
		if marker == 0xDA { // start of scan; no more markers to scan
			break
		}
		segLen := int(be16(data[i+2 : i+4]))
		i += 2 + segLen
	}
	return nil, false
}
