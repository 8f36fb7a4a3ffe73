// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/renameio/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
)

// openAIEngine speaks through the OpenAI speech endpoint (or any
// API-compatible server reachable via base_url).
type openAIEngine struct {
	client openai.Client
	model  string
	voice  string
	speed  float64
	format string
}

func newOpenAIEngine(cfg config.TTSConfig) (*openAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fault.BadConfig("tts.openai", "api key missing, set VIDFORGE_OPENAI_API_KEY")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	speed := cfg.Rate
	if speed <= 0 {
		speed = 1.0
	}

	return &openAIEngine{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		voice:  cfg.Voice,
		speed:  speed,
		format: cfg.Format,
	}, nil
}

func (e *openAIEngine) Name() string { return "openai" }

func (e *openAIEngine) Synthesize(ctx context.Context, text, out string) error {
	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(e.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(e.voice),
		ResponseFormat: speechFormat(e.format),
		Speed:          openai.Float(e.speed),
	})
	if err != nil {
		return fault.Collab("tts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.Collab("tts", &fault.HTTPStatusError{Code: resp.StatusCode})
	}
	return writeBody(resp.Body, out)
}

func speechFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch format {
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

// writeBody streams a synthesis response to disk, publishing atomically so a
// failed or empty response never leaves a partial segment for the prober.
func writeBody(body io.Reader, out string) error {
	pending, err := renameio.NewPendingFile(out, renameio.WithPermissions(0o644))
	if err != nil {
		return fault.Wrap(fault.KindCollaborator, "tts.write", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace

	n, err := io.Copy(pending, body)
	if err != nil {
		return fault.Wrap(fault.KindCollaborator, "tts.write", err)
	}
	if n == 0 {
		// Some servers send 200 with an empty body instead of an error.
		return fault.Collab("tts", fmt.Errorf("empty audio response"))
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fault.Wrap(fault.KindCollaborator, "tts.write", err)
	}
	return nil
}
