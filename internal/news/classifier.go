package news

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrClassifierUnavailable signals that no usable classifier output exists for
// an event. Callers treat it as neutral sentiment for new events only; it must
// never clear or shorten a persisted pause.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// ClassifierResult is the numeric output of the external news classifier.
type ClassifierResult struct {
	Sentiment     float64 `json:"sentiment"` // [-1, 1]
	Confidence    float64 `json:"confidence"` // [0, 1]
	Category      string  `json:"category"`
	ImpactHorizon string  `json:"impact_horizon"`
}

// SentLLM is the confidence-weighted sentiment used by the shock score.
func (c *ClassifierResult) SentLLM() float64 {
	if c == nil {
		return 0
	}
	return c.Sentiment * c.Confidence
}

const classifierSchema = `{
	"type": "object",
	"required": ["sentiment", "confidence", "category"],
	"properties": {
		"sentiment": {"type": "number", "minimum": -1, "maximum": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"category": {"type": "string", "minLength": 1},
		"impact_horizon": {"type": "string"}
	}
}`

var compiledClassifierSchema = jsonschema.MustCompileString("classifier.json", classifierSchema)

// ParseClassifierPayload validates and decodes a raw classifier response.
// Anything that fails schema validation is reported as ErrClassifierUnavailable
// so the caller falls back to neutral instead of trusting partial output.
func ParseClassifierPayload(payload []byte) (*ClassifierResult, error) {
	if len(payload) == 0 {
		return nil, ErrClassifierUnavailable
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: payload is not an object", ErrClassifierUnavailable)
	}
	if err := compiledClassifierSchema.Validate(doc.Value()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	return &ClassifierResult{
		Sentiment:     doc.Get("sentiment").Float(),
		Confidence:    doc.Get("confidence").Float(),
		Category:      strings.ToLower(doc.Get("category").String()),
		ImpactHorizon: strings.ToLower(doc.Get("impact_horizon").String()),
	}, nil
}
