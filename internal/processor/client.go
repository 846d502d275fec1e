package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"sectiondesk/internal/models"
)

// SectionResult is the per-label payload the processor responds with.
type SectionResult struct {
	Result string `json:"result"`
}

// Client posts one submission at a time to the external PDF processor.
// It owns no timeout beyond the transport's; the application never retries.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{},
	}
}

// Process uploads both staged PDFs plus the serialized section entries and
// decodes the per-label results. Any transport error, non-2xx status,
// non-JSON body, or explicit error field is returned as a single failure.
func (c *Client) Process(ctx context.Context, primary, secondary *models.StagedFile, sections models.SectionForm) (map[models.Label]SectionResult, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	parts := []struct {
		field string
		file  *models.StagedFile
	}{
		{"pdf1", primary},
		{"pdf2", secondary},
	}
	for _, part := range parts {
		if err := writeFilePart(form, part.field, part.file); err != nil {
			return nil, err
		}
	}

	encoded, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("encode sections: %w", err)
	}
	if err := form.WriteField("sections", string(encoded)); err != nil {
		return nil, fmt.Errorf("write sections field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to processor: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read processor response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("processor returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return decodeResults(payload)
}

func writeFilePart(form *multipart.Writer, field string, file *models.StagedFile) error {
	part, err := form.CreateFormFile(field, file.FileName)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	src, err := os.Open(file.StoredPath)
	if err != nil {
		return fmt.Errorf("open staged %s: %w", field, err)
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}

// decodeResults accepts either {"error": "..."} or a label -> result map.
// Unknown keys are tolerated; a missing label simply has no result here.
func decodeResults(payload []byte) (map[models.Label]SectionResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		if json.Valid(payload) {
			// a non-object body carries no per-label results; every
			// record falls back to the generic text
			return map[models.Label]SectionResult{}, nil
		}
		return nil, fmt.Errorf("decode processor response: %w", err)
	}
	if msg, ok := raw["error"]; ok {
		var detail string
		if err := json.Unmarshal(msg, &detail); err != nil {
			detail = string(msg)
		}
		return nil, fmt.Errorf("processor error: %s", detail)
	}
	results := make(map[models.Label]SectionResult, len(models.Labels))
	for _, label := range models.Labels {
		value, ok := raw[string(label)]
		if !ok {
			continue
		}
		var res SectionResult
		if err := json.Unmarshal(value, &res); err != nil {
			// tolerated; the record falls back to the generic result
			continue
		}
		results[label] = res
	}
	return results, nil
}
