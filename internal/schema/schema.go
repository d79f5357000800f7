// Package schema validates write payloads against the JSON schema of their
// entity type before they reach the remote tree.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var files embed.FS

const baseURL = "https://flocksync.local/schemas/"

var printer = message.NewPrinter(language.English)

// Validator holds the compiled schema of every entity type.
type Validator struct {
	schemas map[domain.EntityType]*jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for _, entity := range domain.EntityTypes {
		raw, err := files.ReadFile("schemas/" + entity.String() + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entity, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", entity, err)
		}
		if err := c.AddResource(baseURL+entity.String()+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entity, err)
		}
	}

	v := &Validator{schemas: make(map[domain.EntityType]*jsonschema.Schema, len(domain.EntityTypes))}
	for _, entity := range domain.EntityTypes {
		sch, err := c.Compile(baseURL + entity.String() + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", entity, err)
		}
		v.schemas[entity] = sch
	}
	return v, nil
}

// MustNew is like New but panics on error. The schemas are embedded, so a
// failure is a build defect.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks data against the schema of entity. A failure is returned
// as *domain.ValidationError naming the offending field.
func (v *Validator) Validate(entity domain.EntityType, data any) error {
	sch, ok := v.schemas[entity]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entity)
	}

	// Round-trip through JSON so typed records and generic maps are
	// validated the same way.
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.NewValidationError(entity.String(), err.Error())
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return domain.NewValidationError(entity.String(), err.Error())
	}

	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return toValidationError(entity, ve)
		}
		return domain.NewValidationError(entity.String(), err.Error())
	}
	return nil
}

// toValidationError reports the first leaf cause.
func toValidationError(entity domain.EntityType, ve *jsonschema.ValidationError) *domain.ValidationError {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	field := entity.String()
	if len(leaf.InstanceLocation) > 0 {
		field = strings.Join(leaf.InstanceLocation, ".")
	}

	return domain.NewValidationError(field, leaf.ErrorKind.LocalizedString(printer))
}
