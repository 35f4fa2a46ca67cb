package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the LLM fallback recognizer.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	ModelName         string        `mapstructure:"model_name"`
	Temperature       float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

const recognizerInstruction = `You classify short chat messages sent to an assistant bot.
Answer with the single best intent from this list, or "unknown" if none fits:
%s

Give a confidence between 0 and 1 and fill entities only with values literally present in the message.
Known entity names: reminder_id, emoji, name, category, game_type, guild, meeting_type.`

var recognitionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent":     {Type: genai.TypeString, Description: "One of the listed intent names, or unknown."},
		"confidence": {Type: genai.TypeNumber, Description: "Confidence between 0 and 1."},
		"entities": {
			Type:        genai.TypeArray,
			Description: "Entities found in the message.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString},
					"value": {Type: genai.TypeString},
				},
				Required: []string{"name", "value"},
			},
		},
	},
	Required: []string{"intent", "confidence"},
}

// GeminiRecognizer asks a Gemini model for the intent of messages the table
// could not classify.
type GeminiRecognizer struct {
	client     *genai.Client
	model      string
	config     *genai.GenerateContentConfig
	table      *Table
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	log        *slog.Logger
}

// NewGeminiRecognizer creates the recognizer. The table restricts the intents
// the model may answer with.
func NewGeminiRecognizer(ctx context.Context, cfg GeminiConfig, table *Table, logger *slog.Logger) (*GeminiRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	instruction := fmt.Sprintf(recognizerInstruction, strings.Join(table.Names(), "\n"))
	genCfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    recognitionSchema,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log := logger.With("component", "gemini_recognizer")
	log.Info("Gemini recognizer initialized", "model", cfg.ModelName)
	return &GeminiRecognizer{
		client:     client,
		model:      cfg.ModelName,
		config:     genCfg,
		table:      table,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		timeout:    timeout,
		log:        log,
	}, nil
}

// Recognize implements Recognizer.
func (g *GeminiRecognizer) Recognize(ctx context.Context, text, _ string, _ bool) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := g.generateWithRetries(ctx, contents)
	if err != nil {
		return Result{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, fmt.Errorf("gemini returned no candidates")
	}
	return parseRecognition(resp.Text(), g.table)
}

func (g *GeminiRecognizer) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var err error
	for i := 0; i <= g.maxRetries; i++ {
		var resp *genai.GenerateContentResponse
		resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) && i < g.maxRetries {
			g.log.InfoContext(ctx, "Retrying Gemini call", "attempt", i+1, "code", apiErr.Code, "delay", g.retryDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.retryDelay):
			}
			continue
		}
		break
	}
	return nil, fmt.Errorf("gemini API call failed: %w", err)
}

type recognition struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Entities   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"entities"`
}

// parseRecognition decodes the model answer. Intents outside the table
// become Unknown and confidence is clamped to [0,1].
func parseRecognition(raw string, table *Table) (Result, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var rec recognition
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Result{}, fmt.Errorf("invalid recognition JSON: %w", err)
	}

	if _, ok := table.Lookup(rec.Intent); !ok {
		return Result{Intent: Unknown}, nil
	}

	res := Result{Intent: rec.Intent, Confidence: min(max(rec.Confidence, 0), 1)}
	for _, e := range rec.Entities {
		if e.Name == "" || e.Value == "" {
			continue
		}
		if res.Entities == nil {
			res.Entities = make(map[string]string)
		}
		res.Entities[e.Name] = e.Value
	}
	return res, nil
}
