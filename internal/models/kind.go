package models

import "fmt"

// Kind describes one versioned entity kind (component or form) and where it is stored.
// Components and forms share the same versioning rules; only tables and payload shape differ.
type Kind struct {
	Name         string // singular name used in logs and errors
	Plural       string // URL segment
	EntityTable  string
	VersionTable string
	ForeignKey   string // column in VersionTable referencing EntityTable.id

	// HasBase reports whether the entity table carries base_component_id.
	HasBase bool
	// CategoryRequired makes category mandatory on create/update.
	CategoryRequired bool
	// PayloadMaps are payload sub-documents defaulted to {} when missing or null.
	PayloadMaps []string
	// RequiredPayloadFields must be present and non-empty in every version payload.
	RequiredPayloadFields []string
	// DefinitionMaps, when set, are combined into a derived "definition" sub-document.
	DefinitionMaps []string
}

// ComponentKind is the kind descriptor for component definitions.
var ComponentKind = Kind{
	Name:             "component",
	Plural:           "components",
	EntityTable:      "form_definition.components",
	VersionTable:     "form_definition.component_versions",
	ForeignKey:       "component_id",
	HasBase:          true,
	CategoryRequired: true,
	PayloadMaps:      []string{"default_props", "validation_config", "service_bindings"},
	DefinitionMaps:   []string{"default_props", "validation_config", "service_bindings"},
}

// FormKind is the kind descriptor for form definitions.
var FormKind = Kind{
	Name:                  "form",
	Plural:                "forms",
	EntityTable:           "form_definition.forms",
	VersionTable:          "form_definition.form_versions",
	ForeignKey:            "form_id",
	PayloadMaps:           []string{"schema"},
	RequiredPayloadFields: []string{"key"},
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{ComponentKind, FormKind}
}

// NormalizePayload returns a copy of payload with every sub-map defaulted to an empty
// document and the derived definition rebuilt. It fails when a required field is missing.
func (k Kind) NormalizePayload(payload Document) (Document, error) {
	out := make(Document, len(payload)+len(k.PayloadMaps)+1)
	for key, value := range payload {
		out[key] = value
	}

	for _, field := range k.RequiredPayloadFields {
		value, ok := out[field]
		if !ok || value == nil || value == "" {
			return nil, fmt.Errorf("%s version payload: field %q is required", k.Name, field)
		}
	}

	for _, name := range k.PayloadMaps {
		sub, err := asDocument(out[name])
		if err != nil {
			return nil, fmt.Errorf("%s version payload: field %q: %w", k.Name, name, err)
		}
		out[name] = sub
	}

	if len(k.DefinitionMaps) > 0 {
		definition := make(Document, len(k.DefinitionMaps))
		for _, name := range k.DefinitionMaps {
			definition[name] = out[name]
		}
		out["definition"] = definition
	}

	return out, nil
}

// asDocument converts a decoded JSON value to a Document; nil becomes {}.
func asDocument(value any) (Document, error) {
	switch v := value.(type) {
	case nil:
		return Document{}, nil
	case Document:
		return v, nil
	case map[string]any:
		return Document(v), nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", value)
	}
}
