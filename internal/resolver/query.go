package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/appimage-tools/app-installer/internal/system"
)

var ErrFieldMissing = errors.New("field is missing or null")

// Query extracts a top level string field from a JSON document.
type Query interface {
	Lookup(ctx context.Context, body []byte, field string) (string, error)
}

type NativeQuery struct{}

func (NativeQuery) Lookup(_ context.Context, body []byte, field string) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	raw, ok := doc[field]
	if !ok {
		return "", ErrFieldMissing
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	switch v := v.(type) {
	case nil:
		return "", ErrFieldMissing
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("field %q is not a string", field)
	}
}

// JQQuery delegates to the external jq binary. Only string values are
// returned; any other type reads as a missing field.
type JQQuery struct {
	Runner system.Runner
}

const JQBinary = "jq"

func (q JQQuery) Lookup(ctx context.Context, body []byte, field string) (string, error) {
	out, err := q.Runner.Run(ctx, bytes.NewReader(body), JQBinary, "-r", "--arg", "field", field, ".[$field] | strings")
	if err != nil {
		return "", fmt.Errorf("jq failed: %w", err)
	}
	v := strings.TrimRight(string(out), "\n")
	if v == "" || v == "null" {
		return "", ErrFieldMissing
	}
	return v, nil
}
