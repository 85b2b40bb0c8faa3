package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"matric/internal/extraction"
	"matric/internal/matricerr"
)

// FileStorage fetches an uploaded attachment's bytes for the extraction
// handler's attachment_id payload path.
type FileStorage interface {
	Download(attachmentID uuid.UUID) (data []byte, contentType, filename string, err error)
}

// extractionPayload is the decoded shape of an extraction job's payload.
type extractionPayload struct {
	Strategy     string          `json:"strategy"`
	Filename     string          `json:"filename"`
	MimeType     string          `json:"mime_type"`
	AttachmentID string          `json:"attachment_id"`
	Data         string          `json:"data"`
	Config       json.RawMessage `json:"config"`
}

// ExtractionHandler is the canonical JobHandler: decode payload, resolve
// the adapter from the extraction registry, emit progress at fixed
// milestones (10/20/80/100).
type ExtractionHandler struct {
	registry *extraction.Registry
	files    FileStorage
}

func NewExtractionHandler(registry *extraction.Registry, files FileStorage) *ExtractionHandler {
	return &ExtractionHandler{registry: registry, files: files}
}

func (*ExtractionHandler) JobType() JobType           { return "extraction" }
func (*ExtractionHandler) CanHandle(t JobType) bool    { return t == "extraction" }

func (h *ExtractionHandler) Execute(jc *Context) (Result, error) {
	if len(jc.Job.Payload) == 0 {
		return Failed("missing extraction job payload"), nil
	}

	var payload extractionPayload
	if err := json.Unmarshal(jc.Job.Payload, &payload); err != nil {
		return Failed(fmt.Sprintf("invalid extraction job payload: %v", err)), nil
	}

	strategyStr := payload.Strategy
	if strategyStr == "" {
		strategyStr = "text_native"
	}
	strategy, err := extraction.ParseStrategy(strategyStr)
	if err != nil {
		return Failed(fmt.Sprintf("invalid extraction strategy: %v", err)), nil
	}

	filename := payload.Filename
	if filename == "" {
		filename = "unknown"
	}
	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	config := payload.Config
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}

	var data []byte
	switch {
	case payload.AttachmentID != "":
		if h.files == nil {
			return Failed("file storage not configured"), nil
		}
		attachmentID, err := uuid.Parse(payload.AttachmentID)
		if err != nil {
			return Failed(fmt.Sprintf("invalid attachment_id: %v", err)), nil
		}
		fetched, _, _, err := h.files.Download(attachmentID)
		if err != nil {
			return Failed(fmt.Sprintf("failed to download attachment %s: %v", attachmentID, err)), nil
		}
		data = fetched
	case payload.Data != "":
		data = []byte(payload.Data)
	default:
		return Failed("no data provided (expected 'attachment_id' or 'data' field)"), nil
	}

	_ = jc.ReportProgress(jc.Context, 10, "Starting extraction")

	if !h.registry.HasAdapter(strategy) {
		return Failed(fmt.Sprintf("no adapter registered for strategy: %s", strategy)), nil
	}

	_ = jc.ReportProgress(jc.Context, 20, "Extracting content")

	result, err := h.registry.Extract(jc.Context, strategy, data, filename, mimeType, config)
	if err != nil {
		if matricerr.Is(err, matricerr.KindInvalidInput) {
			return Failed(fmt.Sprintf("extraction failed: %v", err)), nil
		}
		return RetryResult(fmt.Sprintf("extraction failed: %v", err)), nil
	}

	_ = jc.ReportProgress(jc.Context, 80, "Extraction complete")

	textLen := 0
	hasText := result.ExtractedText != nil
	if hasText {
		textLen = len(*result.ExtractedText)
	}
	resultJSON, err := json.Marshal(map[string]any{
		"strategy":        string(strategy),
		"has_text":        hasText,
		"text_length":     textLen,
		"has_description": result.AIDescription != nil,
		"metadata":        json.RawMessage(result.Metadata),
	})
	if err != nil {
		return Result{}, matricerr.Internal("marshal extraction result: %v", err)
	}

	_ = jc.ReportProgress(jc.Context, 100, "Done")
	return Success(resultJSON), nil
}
