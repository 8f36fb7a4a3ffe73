// SPDX-License-Identifier: MIT

package music

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/log"
)

// analyzeTimeout bounds one chat completion call.
const analyzeTimeout = 30 * time.Second

// promptScriptLimit caps how much of the script is quoted in the prompt.
const promptScriptLimit = 1000

// Analyzer asks an OpenAI-compatible model to distill a narration script
// into music-search features. It never fails: any transport or parse
// problem degrades to a generic default analysis.
type Analyzer struct {
	client      openai.Client
	model       string
	temperature float64
	hasKey      bool
	logger      zerolog.Logger
}

// NewAnalyzer builds an analyzer from the LLM config. A missing API key is
// tolerated; analysis then always returns defaults.
func NewAnalyzer(cfg config.LLMConfig) *Analyzer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	logger := log.WithComponent("music.analyzer")
	if cfg.APIKey == "" {
		logger.Warn().Msg("no LLM api key configured, content analysis will use defaults")
	}

	return &Analyzer{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		hasKey:      cfg.APIKey != "",
		logger:      logger,
	}
}

// Analyze extracts theme, mood, pace, genre preferences and keywords from
// the script. Failures of any kind fall back to DefaultAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, content string) ContentAnalysis {
	if !a.hasKey {
		return DefaultAnalysis(content)
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(analysisPrompt(content)),
		},
		Model:       openai.ChatModel(a.model),
		Temperature: openai.Float(a.temperature),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("content analysis request failed, using defaults")
		return DefaultAnalysis(content)
	}
	if len(resp.Choices) == 0 {
		a.logger.Warn().Msg("content analysis returned no choices, using defaults")
		return DefaultAnalysis(content)
	}

	analysis, err := parseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		a.logger.Warn().Err(err).Msg("content analysis response not parseable, using defaults")
		return DefaultAnalysis(content)
	}

	fillAnalysisDefaults(&analysis)
	a.logger.Debug().
		Str("theme", analysis.Theme).
		Str("mood", analysis.Mood).
		Strs("genres", analysis.GenrePreferences).
		Msg("content analyzed")
	return analysis
}

func analysisPrompt(content string) string {
	var b strings.Builder
	b.WriteString("Analyze the following narration script and extract features for choosing background music.\n\n")
	b.WriteString("Script:\n")
	b.WriteString(truncateRunes(content, promptScriptLimit))
	b.WriteString("\n\nRespond with a single JSON object containing exactly these fields:\n")
	b.WriteString("- \"theme\": main subject (e.g. technology, nature, business, education)\n")
	b.WriteString("- \"mood\": emotional tone (e.g. calm, energetic, inspiring, serious)\n")
	b.WriteString("- \"pace\": rhythm, one of slow, medium, fast\n")
	b.WriteString("- \"genre_preferences\": list of suitable music genres (e.g. ambient, electronic, classical, jazz)\n")
	b.WriteString("- \"keywords\": list of keywords for searching matching music\n")
	b.WriteString("- \"duration_suitable\": suitable track length range in minutes (e.g. \"2-5\")\n\n")
	b.WriteString("Return only the JSON object, nothing else.")
	return b.String()
}

// parseAnalysis tolerates code fences and prose around the JSON object by
// unmarshalling the outermost brace span.
func parseAnalysis(text string) (ContentAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ContentAnalysis{}, errors.New("no json object in response")
	}

	var analysis ContentAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return ContentAnalysis{}, err
	}
	return analysis, nil
}

// fillAnalysisDefaults backfills fields the model omitted.
func fillAnalysisDefaults(a *ContentAnalysis) {
	if a.Theme == "" {
		a.Theme = "general"
	}
	if a.Mood == "" {
		a.Mood = "neutral"
	}
	if a.Pace == "" {
		a.Pace = "medium"
	}
	if len(a.GenrePreferences) == 0 {
		a.GenrePreferences = []string{"ambient", "electronic"}
	}
	if a.DurationSuitable == "" {
		a.DurationSuitable = "2-5"
	}
}

// DefaultAnalysis is the fallback feature set: generic theme and mood, with
// the first few script words as search keywords.
func DefaultAnalysis(content string) ContentAnalysis {
	words := strings.Fields(content)
	if len(words) > 5 {
		words = words[:5]
	}
	return ContentAnalysis{
		Theme:            "general",
		Mood:             "neutral",
		Pace:             "medium",
		GenrePreferences: []string{"ambient", "electronic"},
		Keywords:         words,
		DurationSuitable: "2-5",
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
