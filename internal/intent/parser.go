package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

// Parser turns user text into an Intent. Implementations return an error
// carrying clierr.CodeAmbiguous when the text cannot be mapped with confidence.
type Parser interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

// Ambiguous builds the error parsers return for unclear input.
func Ambiguous(reason string) error {
	return clierr.New(clierr.CodeAmbiguous, "could not understand the request: "+reason)
}

// JSONParser accepts the structured form {"kind": "...", "params": {...}}
// and reports anything else as ambiguous.
type JSONParser struct{}

func (JSONParser) Parse(_ context.Context, text string) (Intent, error) {
	raw := strings.TrimSpace(text)
	if !strings.HasPrefix(raw, "{") {
		return Intent{}, Ambiguous("expected a structured intent")
	}
	var payload struct {
		Kind   string         `json:"kind"`
		Params map[string]any `json:"params"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Intent{}, Ambiguous(err.Error())
	}
	if strings.TrimSpace(payload.Kind) == "" {
		return Intent{}, Ambiguous("missing action kind")
	}
	return New(ParseKind(payload.Kind), payload.Params), nil
}
