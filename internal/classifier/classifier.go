package classifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentAskPrice   Intent = "ask_price"
	IntentPlaceOrder Intent = "place_order"
	IntentUnknown    Intent = "unknown"
)

// Guess результат классификации. Quantity == 0 значит "не указано".
type Guess struct {
	Intent   Intent `json:"intent"`
	Product  string `json:"product,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

// Classifier any failure must come back as IntentUnknown, never as an error.
type Classifier interface {
	Classify(ctx context.Context, text string) Guess
}

// Noop используется, когда ключ не задан
type Noop struct{}

func (Noop) Classify(context.Context, string) Guess { return Guess{Intent: IntentUnknown} }

const systemPrompt = `You classify customer messages for a small online shop in Algeria.
Messages mix French, Algerian Darija (latin and arabic script) and English.
Answer with one JSON object only:
{"intent": "greeting" | "ask_price" | "place_order" | "unknown", "product": string or null, "quantity": integer or null}
"product" is the product the customer names, lowercased, without quantity words.`

type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: 8 * time.Second,
	}
}

func (c *OpenAI) Classify(ctx context.Context, text string) Guess {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		log.WithError(err).Warn("classifier request failed")
		return Guess{Intent: IntentUnknown}
	}
	if len(resp.Choices) == 0 {
		return Guess{Intent: IntentUnknown}
	}

	g, err := ParseGuess(resp.Choices[0].Message.Content)
	if err != nil {
		log.WithError(err).Warn("classifier answer unreadable")
		return Guess{Intent: IntentUnknown}
	}
	return g
}

// ParseGuess tolerates code fences, prose around the object and quantities sent as strings.
func ParseGuess(content string) (Guess, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Guess{Intent: IntentUnknown}, errors.New("no json object in answer")
	}

	var raw struct {
		Intent   string          `json:"intent"`
		Product  *string         `json:"product"`
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return Guess{Intent: IntentUnknown}, errors.Wrap(err, "decode guess")
	}

	g := Guess{Intent: IntentUnknown}
	switch Intent(strings.ToLower(strings.TrimSpace(raw.Intent))) {
	case IntentGreeting:
		g.Intent = IntentGreeting
	case IntentAskPrice:
		g.Intent = IntentAskPrice
	case IntentPlaceOrder:
		g.Intent = IntentPlaceOrder
	}
	if raw.Product != nil {
		g.Product = strings.TrimSpace(*raw.Product)
	}
	g.Quantity = parseQuantityField(raw.Quantity)
	return g, nil
}

func parseQuantityField(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 1 || n != float64(int64(n)) {
		return 0
	}
	return int64(n)
}
