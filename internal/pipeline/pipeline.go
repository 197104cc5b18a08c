// Package pipeline drives the external services that turn an academic paper
// into a narrated video. The AI-heavy work lives behind HTTP endpoints; this
// package only sequences the calls and maps progress onto stage boundaries.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Failure kinds recorded on jobs that die in a pipeline stage.
const (
	KindPaperFetch       = "paper_fetch"
	KindScriptGeneration = "script_generation"
	KindAudioSynthesis   = "audio_synthesis"
	KindVideoRender      = "video_render"
)

// Stage entry percentages. Rendering dominates wall-clock time, so it owns
// the widest band.
const (
	progressFetch  = 0
	progressScript = 15
	progressAudio  = 45
	progressRender = 70
)

const defaultRequestTimeout = 2 * time.Minute

// ProgressFunc receives percent complete and a short stage note. Returning
// an error aborts the run.
type ProgressFunc func(percent int, note string) error

// Runner produces a video for a paper reference, reporting progress as it
// advances, and returns the URL of the finished video.
type Runner interface {
	Run(ctx context.Context, paperRef string, report ProgressFunc) (string, error)
}

// Error ties a pipeline failure to the stage that caused it.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the endpoints of the four generation services.
type Config struct {
	PaperServiceURL  string
	ScriptServiceURL string
	AudioServiceURL  string
	RenderServiceURL string
	RequestTimeout   time.Duration
}

// VideoPipeline is the production Runner. Each stage is one JSON POST to
// the corresponding service.
type VideoPipeline struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a pipeline from config.
func New(config Config, logger *slog.Logger) *VideoPipeline {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &VideoPipeline{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type paperFetchRequest struct {
	PaperRef string `json:"paper_ref"`
}

type paperFetchResponse struct {
	DocumentID string `json:"document_id"`
}

type scriptRequest struct {
	DocumentID string `json:"document_id"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

type audioRequest struct {
	Script string `json:"script"`
}

type audioResponse struct {
	AudioURL string `json:"audio_url"`
}

type renderRequest struct {
	DocumentID string `json:"document_id"`
	Script     string `json:"script"`
	AudioURL   string `json:"audio_url"`
}

type renderResponse struct {
	VideoURL string `json:"video_url"`
}

func (p *VideoPipeline) Run(ctx context.Context, paperRef string, report ProgressFunc) (string, error) {
	if err := report(progressFetch, "fetching paper"); err != nil {
		return "", err
	}
	var fetched paperFetchResponse
	if err := p.postJSON(ctx, p.config.PaperServiceURL, paperFetchRequest{PaperRef: paperRef}, &fetched); err != nil {
		return "", &Error{Kind: KindPaperFetch, Err: err}
	}
	if fetched.DocumentID == "" {
		return "", &Error{Kind: KindPaperFetch, Err: fmt.Errorf("paper service returned an empty document_id")}
	}
	p.logger.Debug("pipeline stage complete",
		slog.String("stage", "fetch"),
		slog.String("paper_ref", paperRef),
		slog.String("document_id", fetched.DocumentID),
	)

	if err := report(progressScript, "generating script"); err != nil {
		return "", err
	}
	var scripted scriptResponse
	if err := p.postJSON(ctx, p.config.ScriptServiceURL, scriptRequest{DocumentID: fetched.DocumentID}, &scripted); err != nil {
		return "", &Error{Kind: KindScriptGeneration, Err: err}
	}
	if scripted.Script == "" {
		return "", &Error{Kind: KindScriptGeneration, Err: fmt.Errorf("script service returned an empty script")}
	}
	p.logger.Debug("pipeline stage complete",
		slog.String("stage", "script"),
		slog.String("paper_ref", paperRef),
	)

	if err := report(progressAudio, "synthesizing narration"); err != nil {
		return "", err
	}
	var voiced audioResponse
	if err := p.postJSON(ctx, p.config.AudioServiceURL, audioRequest{Script: scripted.Script}, &voiced); err != nil {
		return "", &Error{Kind: KindAudioSynthesis, Err: err}
	}
	if voiced.AudioURL == "" {
		return "", &Error{Kind: KindAudioSynthesis, Err: fmt.Errorf("audio service returned an empty audio_url")}
	}
	p.logger.Debug("pipeline stage complete",
		slog.String("stage", "audio"),
		slog.String("paper_ref", paperRef),
	)

	if err := report(progressRender, "rendering video"); err != nil {
		return "", err
	}
	var rendered renderResponse
	renderReq := renderRequest{
		DocumentID: fetched.DocumentID,
		Script:     scripted.Script,
		AudioURL:   voiced.AudioURL,
	}
	if err := p.postJSON(ctx, p.config.RenderServiceURL, renderReq, &rendered); err != nil {
		return "", &Error{Kind: KindVideoRender, Err: err}
	}
	if rendered.VideoURL == "" {
		return "", &Error{Kind: KindVideoRender, Err: fmt.Errorf("render service returned an empty video_url")}
	}
	p.logger.Debug("pipeline stage complete",
		slog.String("stage", "render"),
		slog.String("paper_ref", paperRef),
		slog.String("video_url", rendered.VideoURL),
	)

	return rendered.VideoURL, nil
}

func (p *VideoPipeline) postJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", endpoint, res.StatusCode, truncateBody(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}

	return nil
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
