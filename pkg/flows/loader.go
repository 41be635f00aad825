package flows

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rescindhq/rescind/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// definitionFileSchema validates the shape of a definition file before the
// structural checks in models.WorkflowDefinition.Validate run.
const definitionFileSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name", "kind", "entry", "steps"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"kind": {"type": "string", "enum": ["cancel", "dispute"]},
			"entry": {"type": "string", "minLength": 1},
			"steps": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name", "kind"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"kind": {"type": "string", "enum": ["invoke", "wait", "terminal"]},
						"executor": {"type": "string"},
						"retry": {
							"type": "object",
							"properties": {
								"max_attempts": {"type": "integer", "minimum": 1},
								"interval_seconds": {"type": "integer", "minimum": 0},
								"backoff_rate": {"type": "number", "minimum": 0}
							}
						},
						"record": {"type": "string"},
						"on_success": {"type": "string"},
						"on_failure": {"type": "string"},
						"wait_seconds": {"type": "integer", "minimum": 1},
						"next": {"type": "string"},
						"status": {"type": "string"}
					}
				}
			}
		}
	}
}`

// Library holds the workflow definitions available to the dispatcher, one per
// action kind.
type Library struct {
	byKind map[models.ActionKind]*models.WorkflowDefinition
}

// NewLibrary validates each definition and indexes it by action kind.
func NewLibrary(definitions ...*models.WorkflowDefinition) (*Library, error) {
	byKind := make(map[models.ActionKind]*models.WorkflowDefinition, len(definitions))

	for _, definition := range definitions {
		if err := definition.Validate(); err != nil {
			return nil, err
		}

		if existing, dup := byKind[definition.Kind]; dup {
			return nil, fmt.Errorf("definitions %s and %s both handle action %s",
				existing.Name, definition.Name, definition.Kind)
		}

		byKind[definition.Kind] = definition
	}

	return &Library{byKind: byKind}, nil
}

// Default returns a library with the built-in definitions.
func Default() *Library {
	library, err := NewLibrary(CancelFlow(), DisputeFlow())
	if err != nil {
		// Built-ins are covered by tests; an invalid one is a programming error.
		panic(err)
	}

	return library
}

// ForAction returns the definition handling the given action kind.
func (l *Library) ForAction(kind models.ActionKind) (*models.WorkflowDefinition, bool) {
	definition, ok := l.byKind[kind]

	return definition, ok
}

// ByName returns the definition with the given name. Executions store the
// definition name, so the worker resolves through here.
func (l *Library) ByName(name string) (*models.WorkflowDefinition, bool) {
	for _, definition := range l.byKind {
		if definition.Name == name {
			return definition, true
		}
	}

	return nil, false
}

// Definitions returns all definitions in the library.
func (l *Library) Definitions() []*models.WorkflowDefinition {
	definitions := make([]*models.WorkflowDefinition, 0, len(l.byKind))
	for _, definition := range l.byKind {
		definitions = append(definitions, definition)
	}

	return definitions
}

// Load reads a definition file, checks it against the file schema, and builds
// a library from it.
func Load(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionFileSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate definition file %s: %w", path, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("definition file %s is invalid: %s", path, strings.Join(details, "; "))
	}

	var definitions []*models.WorkflowDefinition
	if err := json.Unmarshal(raw, &definitions); err != nil {
		return nil, fmt.Errorf("failed to parse definition file %s: %w", path, err)
	}

	return NewLibrary(definitions...)
}
