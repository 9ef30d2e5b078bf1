// Package extractor turns one report URL (image or PDF) into extracted
// clinical text. Failures never escape: an unreadable, unreachable, or
// unsupported report degrades to the empty sentinel so a single bad report
// cannot block a whole ingestion.
package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tanay2406/doctor-rag/internal/record"
)

// InstructionPrompt constrains the model to clinically relevant content.
const InstructionPrompt = "You are a medical OCR assistant. " +
	"Extract only relevant information such as test names, results, reference ranges, " +
	"doctor's notes, and impressions from this report. Avoid decorative or unrelated text."

// maxReportBytes caps how much of a report is read into memory.
const maxReportBytes = 20 << 20

type ocrModel interface {
	ExtractImage(ctx context.Context, prompt, imageDataURL string) (string, error)
	ExtractDocument(ctx context.Context, prompt, filename string, data []byte) (string, error)
}

// Extractor fetches report bytes and delegates to the OCR model.
type Extractor struct {
	ocr    ocrModel
	http   *http.Client
	logger *slog.Logger
}

// New creates an Extractor. httpClient may be nil, in which case a client
// with a 30s timeout is used.
func New(ocr ocrModel, httpClient *http.Client, logger *slog.Logger) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, http: httpClient, logger: logger}
}

// Extract returns the extracted text for one report, or the empty sentinel
// when the report cannot be read. It never returns an error.
func (e *Extractor) Extract(ctx context.Context, ref record.ReportReference) string {
	u, err := url.ParseRequestURI(ref.URL)
	if err != nil {
		e.logger.Warn("Invalid report URL", "report", ref.Index+1, "url", ref.URL, "error", err)
		return ""
	}

	format := formatOf(u)
	if format == formatUnsupported {
		e.logger.Warn("Unsupported report format", "report", ref.Index+1, "url", ref.URL)
		return ""
	}

	data, err := e.fetch(ctx, ref.URL)
	if err != nil {
		e.logger.Warn("Failed to download report", "report", ref.Index+1, "url", ref.URL, "error", err)
		return ""
	}

	var text string
	switch format {
	case formatPNG:
		text, err = e.ocr.ExtractImage(ctx, InstructionPrompt, dataURL("image/png", data))
	case formatJPEG:
		text, err = e.ocr.ExtractImage(ctx, InstructionPrompt, dataURL("image/jpeg", data))
	case formatPDF:
		text, err = e.ocr.ExtractDocument(ctx, InstructionPrompt, path.Base(u.Path), data)
	}
	if err != nil {
		e.logger.Warn("Report text extraction failed", "report", ref.Index+1, "url", ref.URL, "error", err)
		return ""
	}

	return text
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
}

type reportFormat int

const (
	formatUnsupported reportFormat = iota
	formatPNG
	formatJPEG
	formatPDF
)

// formatOf infers the report format from the URL path suffix. Query strings
// (Cloudinary delivery parameters) are ignored.
func formatOf(u *url.URL) reportFormat {
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".png":
		return formatPNG
	case ".jpg", ".jpeg":
		return formatJPEG
	case ".pdf":
		return formatPDF
	default:
		return formatUnsupported
	}
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
