package chatgpt

import (
	"encoding/json"
	"errors"
)

var errNoChoices = errors.New("response has no choices")

// DecodeResult parses a complete response body. Malformed JSON, a shape
// mismatch or an empty choices list yield a *DecodingError; no partial
// result is ever returned.
func DecodeResult(body []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newDecodingError(string(body), err)
	}
	if len(result.Choices) == 0 {
		return nil, newDecodingError(string(body), errNoChoices)
	}
	return &result, nil
}
