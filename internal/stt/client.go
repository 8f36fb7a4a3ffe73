// SPDX-License-Identifier: MIT

// Package stt transcribes narration audio through a whisper-compatible
// HTTP server. Raw segments come back with per-segment confidence derived
// from the model's average log probability; filtering and merging happen
// downstream in the subtitle package.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
	"github.com/mediafab/vidforge/internal/subtitle"
)

// transcribeTimeout bounds one whole upload+transcription round trip.
// Long audio takes minutes on CPU-only whisper servers.
const transcribeTimeout = 10 * time.Minute

// defaultConfidence stands in when the server omits avg_logprob.
const defaultConfidence = 0.8

const defaultMaxFileSizeMB = 1024

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
	".aac":  true,
}

// Client uploads audio to a whisper-compatible /v1/audio/transcriptions
// endpoint and maps the verbose_json reply onto subtitle source segments.
type Client struct {
	endpoint string
	model    string
	language string
	maxBytes int64
	hc       *http.Client
	logger   zerolog.Logger
}

// NewClient validates the STT config and builds a transcription client.
// ServerURL is the server base; the OpenAI-compatible transcription path is
// appended here.
func NewClient(cfg config.STTConfig) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fault.BadConfig("stt.server_url", "no transcription server configured")
	}
	maxMB := cfg.MaxFileSizeMB
	if maxMB <= 0 {
		maxMB = defaultMaxFileSizeMB
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.ServerURL, "/") + "/v1/audio/transcriptions",
		model:    model,
		language: cfg.Language,
		maxBytes: maxMB << 20,
		hc:       &http.Client{Timeout: transcribeTimeout},
		logger:   log.WithComponent("stt"),
	}, nil
}

// verboseResponse mirrors the verbose_json layout whisper servers emit.
// AvgLogprob is a pointer so an absent field is distinguishable from 0.
type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		ID         int      `json:"id"`
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe validates the audio file, streams it to the server as a
// multipart upload, and returns the raw timed segments in start order.
func (c *Client) Transcribe(ctx context.Context, audioPath string) ([]subtitle.STTSegment, error) {
	if err := c.validate(audioPath); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.post(ctx, audioPath)
	if err != nil {
		metrics.RecordTranscription("error")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordTranscription("error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fault.Collab("stt", fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var parsed verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.RecordTranscription("error")
		return nil, fault.Collab("stt", fmt.Errorf("decode response: %w", err))
	}

	segments := make([]subtitle.STTSegment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, subtitle.STTSegment{
			Text:       text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: confidenceFromLogprob(seg.AvgLogprob),
		})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	metrics.RecordTranscription("success")
	c.logger.Info().
		Int("segments", len(segments)).
		Float64(log.FieldDuration, time.Since(start).Seconds()).
		Str("model", c.model).
		Msg("transcription complete")

	if len(segments) == 0 {
		c.logger.Warn().Str("path", audioPath).Msg("server returned no usable segments")
	}
	return segments, nil
}

// post streams the multipart form through a pipe so a gigabyte of audio
// never has to sit in memory.
func (c *Client) post(ctx context.Context, audioPath string) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, c.model, c.language, audioPath)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return nil, fault.Collab("stt", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Timeout("stt.transcribe", ctx.Err().Error())
		}
		return nil, fault.Collab("stt", err)
	}
	return resp, nil
}

func writeForm(mw *multipart.Writer, model, language, audioPath string) error {
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return err
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return err
		}
	}
	return mw.WriteField("response_format", "verbose_json")
}

func (c *Client) validate(audioPath string) error {
	info, err := os.Stat(audioPath)
	if err != nil {
		return fault.NotFound("stt.validate", audioPath)
	}
	if info.Size() == 0 {
		return fault.BadInput("stt.validate", fmt.Sprintf("audio file is empty: %s", audioPath))
	}
	if info.Size() > c.maxBytes {
		return fault.BadInput("stt.validate", fmt.Sprintf("audio file exceeds %d MB: %s", c.maxBytes>>20, audioPath))
	}
	ext := strings.ToLower(filepath.Ext(audioPath))
	if !supportedExtensions[ext] {
		return fault.BadInput("stt.validate", fmt.Sprintf("unsupported audio format %q", ext))
	}
	return nil
}

// confidenceFromLogprob converts an average log probability to [0,1].
func confidenceFromLogprob(logprob *float64) float64 {
	if logprob == nil {
		return defaultConfidence
	}
	c := math.Exp(*logprob)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}
