package response

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

const (
	defaultSuccessMessage = "Request successful"
	defaultErrorMessage   = "Request failed"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func JSONCreatedResponse(w http.ResponseWriter, data any, message string) error {
	return writeSuccess(w, http.StatusCreated, data, message, nil)
}

func JSONOkResponse(w http.ResponseWriter, data any, message string, headers http.Header) error {
	return writeSuccess(w, http.StatusOK, data, message, headers)
}

// JSONErrorResponse writes a failed envelope. A zero status means 500.
func JSONErrorResponse(w http.ResponseWriter, err any, message string, status int, headers http.Header) error {
	if message == "" {
		message = defaultErrorMessage
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return writeEnvelope(w, Envelope{Status: status, Message: message, Error: err}, headers)
}

// writeSuccess snake-cases the keys of map payloads so ad hoc maps match the
// tagged response structs.
func writeSuccess(w http.ResponseWriter, status int, data any, message string, headers http.Header) error {
	if message == "" {
		message = defaultSuccessMessage
	}
	if m, ok := data.(map[string]any); ok {
		data = SnakeCaseKeys(m)
	}

	return writeEnvelope(w, Envelope{Status: status, Success: true, Message: message, Data: data}, headers)
}

func writeEnvelope(w http.ResponseWriter, env Envelope, headers http.Header) error {
	js, err := json.Marshal(env)
	if err != nil {
		return err
	}

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)

	_, err = w.Write(append(js, '\n'))
	return err
}

// SnakeCaseKeys returns a copy of data with every key, including those of
// nested maps and maps inside slices, in snake_case.
func SnakeCaseKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[snakeCase(key)] = snakeCaseValue(value)
	}
	return out
}

func snakeCaseValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return SnakeCaseKeys(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = snakeCaseValue(item)
		}
		return out
	default:
		return value
	}
}

// snakeCase splits on lower-to-upper boundaries only, so acronyms stay whole:
// correlationID becomes correlation_id.
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	prev := rune(0)
	for _, r := range s {
		if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}
