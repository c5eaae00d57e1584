package chipi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind - what went wrong on the signing service side
type ErrorKind string

const (
	// KindPaymaster - the sponsored execution failed (multicall or fee token balance)
	KindPaymaster ErrorKind = "paymaster"
	// KindBackend - the service failed internally, the body usually embeds its own JSON error
	KindBackend ErrorKind = "backend"
	// KindRequest - everything else, mostly rejected input
	KindRequest ErrorKind = "request"
)

var paymasterMarkers = []string{"argent/multicall-failed", "u256_sub Overflow"}

const backendMarker = `{"statusCode":500`

// APIError - non-2xx answer from the signing service
type APIError struct {
	StatusCode int
	Body       string
	Kind       ErrorKind
	// Embedded is the JSON object found inside Body, if any
	Embedded map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signer error (%d, %s): %s", e.StatusCode, e.Kind, e.Body)
}

// UserMessage - short text that is safe to show next to the wave form
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindPaymaster:
		return "The transaction could not be sponsored right now. Please try again later."
	case KindBackend:
		if msg := embeddedMessage(e.Embedded); msg != "" {
			return "Signing service error: " + msg
		}
		return "Signing service error. Please try again later."
	default:
		if msg := embeddedMessage(e.Embedded); msg != "" {
			return "Request rejected: " + msg
		}
		return fmt.Sprintf("Request rejected by the signing service (%d).", e.StatusCode)
	}
}

func newAPIError(status int, body []byte) *APIError {
	text := string(body)
	e := &APIError{StatusCode: status, Body: text, Kind: Classify(status, text)}
	if obj, ok := ExtractEmbeddedJSON(text); ok {
		e.Embedded = obj
	}
	return e
}

// Classify maps a status and body to an ErrorKind
func Classify(status int, body string) ErrorKind {
	for _, marker := range paymasterMarkers {
		if strings.Contains(body, marker) {
			return KindPaymaster
		}
	}
	if strings.Contains(body, backendMarker) || status >= 500 {
		return KindBackend
	}
	return KindRequest
}

// ExtractEmbeddedJSON finds the first complete JSON object in s.
// An object starting with {"statusCode" is preferred over earlier braces.
func ExtractEmbeddedJSON(s string) (map[string]interface{}, bool) {
	start := strings.Index(s, `{"statusCode"`)
	if start < 0 {
		start = strings.Index(s, "{")
	}
	for start >= 0 && start < len(s) {
		if end := matchingBrace(s, start); end > start {
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err == nil {
				return obj, true
			}
		}
		next := strings.Index(s[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchingBrace returns the index of the brace closing s[open], or -1
func matchingBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func embeddedMessage(obj map[string]interface{}) string {
	if obj == nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	return ""
}
