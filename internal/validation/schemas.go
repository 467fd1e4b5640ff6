// Package validation checks the shape of ingestion bodies against embedded
// JSON schemas before any field-level rules run. Schema failures are mapped
// onto the error strings external systems have relied on for years.
package validation

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaValidator validates raw request bodies. Construct once and share;
// it is immutable after construction.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	names := []string{"article-recommendations", "topic-recommendations"}

	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(names))}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

// ValidateArticleRecommendations checks an article push body. Returns the
// legacy error string for the first violation, or "" when the body is valid.
func (sv *SchemaValidator) ValidateArticleRecommendations(body []byte) string {
	return sv.validate("article-recommendations", body)
}

// ValidateTopicRecommendations checks a topic push body.
func (sv *SchemaValidator) ValidateTopicRecommendations(body []byte) string {
	return sv.validate("topic-recommendations", body)
}

func (sv *SchemaValidator) validate(name string, body []byte) string {
	if len(body) == 0 {
		return "No JSON submitted."
	}

	result, err := sv.schemas[name].Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return "No JSON submitted."
	}
	if result.Valid() {
		return ""
	}

	// Legacy messages for the violations systems actually hit; anything else
	// falls through to the schema library's description.
	for _, verr := range result.Errors() {
		field := verr.Field()
		switch {
		case strings.HasSuffix(field, ".score") || verr.Details()["property"] == "score":
			return "Score must be a float"
		case verr.Details()["property"] == "explanation":
			return "Recommendations must include explanation."
		case field == "(root)" && verr.Details()["property"] == "recommendations":
			return "No recommendations submitted."
		}
	}
	first := result.Errors()[0]
	return fmt.Sprintf("%s: %s", first.Field(), first.Description())
}
