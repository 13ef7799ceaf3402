package handler

import (
	"net/http"
	"strconv"
	"time"
)

const maxPageSize = 100

type queryStringValues struct {
	Status string
	Limit  int
	Offset int
}

// retrieveUrlQueryValues reads ?status, ?limit and ?page (1-based). Invalid
// values fall back to the defaults.
func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	// Parse pagination params
	limitStr := r.URL.Query().Get("limit")
	pageStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxPageSize)
		}
	}
	queryValues.Limit = limit

	if pageStr != "" {
		if parsedPage, err := strconv.Atoi(pageStr); err == nil && parsedPage >= 1 {
			offset = (parsedPage - 1) * limit
		}
	}
	queryValues.Offset = offset

	queryValues.Status = r.URL.Query().Get("status")

	return queryValues
}

// optionalTime renders a nullable timestamp for JSON output.
func optionalTime(valid bool, t time.Time) *time.Time {
	if !valid {
		return nil
	}
	return &t
}

// Amounts carry at most two decimal places everywhere in the API.
const amountPlaces = 2
