// Package schema validates request bodies against the JSON schemas of the
// protocol operations before they are decoded into typed requests.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

//go:embed schemas/*.json
var files embed.FS

type Name string

const (
	CheckoutCreate   Name = "checkout_create"
	CheckoutUpdate   Name = "checkout_update"
	CheckoutComplete Name = "checkout_complete"
	DelegatePayment  Name = "delegate_payment"
	CompareProducts  Name = "compare_products"
	PurchaseSimulate Name = "purchase_simulate"
)

var all = []Name{
	CheckoutCreate,
	CheckoutUpdate,
	CheckoutComplete,
	DelegatePayment,
	CompareProducts,
	PurchaseSimulate,
}

type Validator struct {
	schemas map[Name]*gojsonschema.Schema
}

// New compiles every embedded schema. Shared definitions live in
// definitions.json and are attached to each schema before compiling.
func New() (*Validator, error) {
	var defs map[string]any
	if err := readJSON("schemas/definitions.json", &defs); err != nil {
		return nil, err
	}

	v := &Validator{schemas: make(map[Name]*gojsonschema.Schema, len(all))}
	for _, name := range all {
		var doc map[string]any
		if err := readJSON("schemas/"+string(name)+".json", &doc); err != nil {
			return nil, err
		}
		doc["definitions"] = defs

		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// MustNew panics when the embedded schemas do not compile.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks body against the named schema. body must already be
// well-formed JSON. Violations come back as invalid_field errors whose
// param points at the first offending field.
func (v *Validator) Validate(name Name, body []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.New(apperr.CodeMalformedJSON, "Request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	violations := make([]violation, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, toViolation(re))
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].param < violations[j].param
	})

	first := violations[0]
	return apperr.Newf(apperr.CodeInvalidField, "%s: %s", first.param, first.message).
		WithParam(first.param)
}

type violation struct {
	param   string
	message string
}

func toViolation(re gojsonschema.ResultError) violation {
	field := re.Field()
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if field == "(root)" {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	return violation{param: JSONPath(field), message: re.Description()}
}

// JSONPath converts a gojsonschema field ("items.0.quantity") into the
// param notation used by error responses ("$.items[0].quantity").
func JSONPath(field string) string {
	if field == "" || field == "(root)" {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		if _, err := strconv.Atoi(part); err == nil {
			b.WriteString("[" + part + "]")
			continue
		}
		b.WriteString("." + part)
	}
	return b.String()
}

func readJSON(path string, out any) error {
	raw, err := files.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
