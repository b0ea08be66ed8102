package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"membership-billing/internal/common/errors"
)

var createPaymentSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []interface{}{"period", "memberId"},
	"properties": map[string]interface{}{
		"period": map[string]interface{}{
			"type":    "string",
			"pattern": `^\d{6}$`,
		},
		"memberId": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"maxLength": 64,
		},
	},
}

// decodeAndValidate reads the JSON body, checks it against the schema, and
// unmarshals it into out.
func decodeAndValidate(r *http.Request, schema map[string]interface{}, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return errors.NewArgumentMismatchError(fmt.Sprintf("failed to read request body: %s", err))
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return errors.NewArgumentMismatchError(fmt.Sprintf("invalid JSON: %s", err))
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewArgumentMismatchError(fmt.Sprintf("validation error: %s", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewArgumentMismatchError(fmt.Sprintf("request validation failed: %v", errs))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewArgumentMismatchError(fmt.Sprintf("invalid JSON: %s", err))
	}
	return nil
}
