package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/tidwall/gjson"
)

// EnvelopeMode controls how {code, data, message} envelopes are unwrapped.
type EnvelopeMode int

const (
	// EnvelopeAuto unwraps data when the body is a JSON object with a data key
	EnvelopeAuto EnvelopeMode = iota
	// EnvelopeNone always returns the whole body
	EnvelopeNone
	// EnvelopeRequired fails unless the body is a JSON object with a data key
	EnvelopeRequired
)

// ParseEnvelopeMode parses "auto", "none" or "required".
func ParseEnvelopeMode(s string) (EnvelopeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EnvelopeAuto, nil
	case "none", "raw":
		return EnvelopeNone, nil
	case "required", "strict":
		return EnvelopeRequired, nil
	default:
		return EnvelopeAuto, fmt.Errorf("unknown envelope mode %q", s)
	}
}

func (m EnvelopeMode) String() string {
	switch m {
	case EnvelopeNone:
		return "none"
	case EnvelopeRequired:
		return "required"
	default:
		return "auto"
	}
}

// Body is a classified response body.
type Body struct {
	// JSON is set when the content type denotes JSON and the body parsed
	JSON bool
	// Malformed is set when the content type denotes JSON but the body did not parse
	Malformed bool
	// Raw holds the JSON text or the plain text body
	Raw []byte
}

// IsJSONContentType reports whether a content type denotes JSON.
func IsJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}

// ReadBody classifies the response body by content type. With lenient set, a
// malformed JSON body is replaced by an empty object.
func ReadBody(resp *Response, lenient bool) *Body {
	if !IsJSONContentType(resp.ContentType) {
		return &Body{Raw: resp.Body}
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return &Body{JSON: true}
	}
	if !gjson.ValidBytes(resp.Body) {
		if lenient {
			return &Body{JSON: true, Raw: []byte("{}")}
		}
		return &Body{Malformed: true, Raw: resp.Body}
	}
	return &Body{JSON: true, Raw: resp.Body}
}

// Empty reports whether there is nothing to decode.
func (b *Body) Empty() bool {
	return len(b.Raw) == 0
}

// Value returns the decoded JSON value, or the text body as a string.
func (b *Body) Value() interface{} {
	if b.Empty() {
		return nil
	}
	if !b.JSON {
		return string(b.Raw)
	}
	var v interface{}
	if err := json.Unmarshal(b.Raw, &v); err != nil {
		return string(b.Raw)
	}
	return v
}

// Unwrap resolves the payload of a successful response according to mode.
func Unwrap(b *Body, mode EnvelopeMode) (*Body, error) {
	if b.Malformed {
		return nil, types.ErrMalformedBody
	}
	if mode == EnvelopeNone {
		return b, nil
	}

	if b.JSON && !b.Empty() {
		parsed := gjson.ParseBytes(b.Raw)
		if parsed.IsObject() {
			if data := parsed.Get("data"); data.Exists() {
				return &Body{JSON: true, Raw: []byte(data.Raw)}, nil
			}
		}
	}

	if mode == EnvelopeRequired {
		return nil, types.ErrMalformedBody
	}
	return b, nil
}

// ClassifyFailure builds the APIError for a non-2xx response.
func ClassifyFailure(statusCode int, b *Body) *types.APIError {
	apiErr := &types.APIError{
		Code:       types.NoCode,
		StatusCode: statusCode,
		Body:       b.Value(),
		Err:        types.StatusError(statusCode),
	}

	var message string
	switch {
	case b.JSON && !b.Empty():
		parsed := gjson.ParseBytes(b.Raw)
		if parsed.IsObject() {
			message = parsed.Get("message").String()
			if code := parsed.Get("code"); code.Type == gjson.Number {
				apiErr.Code = int(code.Int())
			}
		} else if parsed.Type == gjson.String {
			message = parsed.String()
		}
	case !b.JSON:
		message = string(b.Raw)
	}

	if message == "" {
		message = fmt.Sprintf("request failed %d", statusCode)
	}
	apiErr.Message = message
	return apiErr
}
