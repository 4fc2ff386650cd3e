package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema safe for concurrent use.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(name, schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name, schemaJSON string) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// ValidateJSON validates a raw JSON document.
func (s *Schema) ValidateJSON(doc []byte) (*ValidationResult, error) {
	return s.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateValue validates an already-decoded Go value.
func (s *Schema) ValidateValue(doc interface{}) (*ValidationResult, error) {
	return s.validate(gojsonschema.NewGoLoader(doc))
}

func (s *Schema) validate(loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := s.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validate against %s: %w", s.name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out, nil
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Error joins every message; empty when valid.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// CloudEventSchema covers the CloudEvents 1.0 required context attributes.
const CloudEventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["specversion", "id", "source", "type"],
  "properties": {
    "specversion": {"type": "string", "enum": ["1.0"]},
    "id": {"type": "string", "minLength": 1},
    "source": {"type": "string", "minLength": 1},
    "type": {"type": "string", "minLength": 1},
    "subject": {"type": "string"},
    "time": {"type": "string"},
    "datacontenttype": {"type": "string"},
    "data": {}
  }
}`

// IntentResultSchema is the exact shape accepted from the completion capability.
// confidence has no range here: out-of-range values are clamped, not rejected.
const IntentResultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["intent", "confidence"],
  "additionalProperties": false,
  "properties": {
    "intent": {"type": "string", "enum": ["information", "action", "analysis", "seasonality", "simulation"]},
    "confidence": {"type": "number"},
    "businessCategory": {"type": "string", "enum": ["campaign_performance", "inventory", "pricing", "audience", "budget", "general"]},
    "journeyHint": {"type": "string", "enum": ["discernment", "analysis", "decision", "action"]},
    "extractedParameters": {"type": "object"},
    "explanation": {"type": "string"}
  }
}`

var (
	builtinOnce  sync.Once
	cloudEvent   *Schema
	intentResult *Schema
)

func loadBuiltins() {
	builtinOnce.Do(func() {
		cloudEvent = MustCompile("cloudevent", CloudEventSchema)
		intentResult = MustCompile("intent-result", IntentResultSchema)
	})
}

// CloudEvent returns the compiled CloudEvents envelope schema.
func CloudEvent() *Schema {
	loadBuiltins()
	return cloudEvent
}

// IntentResult returns the compiled IntentResult schema.
func IntentResult() *Schema {
	loadBuiltins()
	return intentResult
}
