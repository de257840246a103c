// Package schema provides the cheap structural pre-validation used to gate
// the expensive validation service. A checker walks a candidate's document
// tree against a declared shape and scores how structurally usable it is.
package schema

import (
	"fmt"

	"github.com/scipress/scipress/internal/types"
)

// Kind is the expected JSON kind of a field
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindAny    Kind = "any"
)

// Field declares one top-level field of an artifact shape.
type Field struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Required bool   `yaml:"required"`
}

// Shape declares the expected structure of one artifact type.
type Shape struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Checker scores candidates against a shape. Scoring is deliberately
// coarse - this is a floor check, not a validator: it answers "is this
// document structurally usable at all", not "is it good".
type Checker struct {
	shape Shape
}

// NewChecker creates a checker for the given shape.
func NewChecker(shape Shape) *Checker {
	return &Checker{shape: shape}
}

// Check returns a structural quality score in [0,1]. A candidate that does
// not decode as a JSON object at all returns an error. Otherwise the score
// is the fraction of satisfied field checks: required fields present, and
// present fields of the declared kind.
func (c *Checker) Check(candidate *types.Candidate) (float64, error) {
	doc, err := candidate.Decode()
	if err != nil {
		return 0, fmt.Errorf("candidate is not a JSON object: %w", err)
	}
	if len(c.shape.Fields) == 0 {
		return 1.0, nil
	}

	checks := 0
	satisfied := 0
	for _, field := range c.shape.Fields {
		value, present := doc[field.Name]

		if field.Required {
			checks++
			if present && value != nil {
				satisfied++
			}
		}

		if present && value != nil && field.Kind != KindAny {
			checks++
			if kindOf(value) == field.Kind {
				satisfied++
			}
		}
	}

	if checks == 0 {
		return 1.0, nil
	}
	return float64(satisfied) / float64(checks), nil
}

// kindOf maps a decoded JSON value to its Kind
func kindOf(value interface{}) Kind {
	switch value.(type) {
	case string:
		return KindString
	case float64:
		return KindNumber
	case bool:
		return KindBool
	case []interface{}:
		return KindArray
	case map[string]interface{}:
		return KindObject
	default:
		return KindAny
	}
}
