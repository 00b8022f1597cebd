package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Decoder turns a response body into a typed value. Failures must be
// reported as *ParseError.
type Decoder[T any] func(body []byte) (T, error)

var (
	errInvalidJSON = errors.New("body is not valid JSON")
	errNullBody    = errors.New("body is null")
)

// JSONDecoder validates the body as JSON, checks that every required gjson
// path is present and unmarshals it into T. A bare null counts as no data.
func JSONDecoder[T any](required ...string) Decoder[T] {
	return func(body []byte) (T, error) {
		var zero T
		if !gjson.ValidBytes(body) {
			return zero, &ParseError{Err: errInvalidJSON}
		}
		if gjson.ParseBytes(body).Type == gjson.Null {
			return zero, &ParseError{Err: errNullBody}
		}
		for _, path := range required {
			if !gjson.GetBytes(body, path).Exists() {
				return zero, &ParseError{Err: fmt.Errorf("missing required field %q", path)}
			}
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return zero, &ParseError{Err: err}
		}
		return v, nil
	}
}
