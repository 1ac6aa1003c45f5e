package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"goa.design/clue/log"

	"github.com/meur/compendium/internal/jobs"
	"github.com/meur/compendium/internal/search"
	"github.com/meur/compendium/internal/storage"
)

// ValidationError lists the messages for every rejected request parameter
type ValidationError struct {
	Fields map[string][]string
}

// Error returns the first message, in field order, followed by the number of
// remaining ones
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	count := 0
	for f, msgs := range e.Fields {
		fields = append(fields, f)
		count += len(msgs)
	}
	if count == 0 {
		return "The given data was invalid."
	}
	slices.Sort(fields)

	var first string
	for _, f := range fields {
		if len(e.Fields[f]) > 0 {
			first = e.Fields[f][0]
			break
		}
	}
	switch rest := count - 1; rest {
	case 0:
		return first
	case 1:
		return first + " (and 1 more error)"
	default:
		return fmt.Sprintf("%s (and %d more errors)", first, rest)
	}
}

// Add records msg against field
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Err returns e when at least one field failed, nil otherwise
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type validationResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// respondErr maps err to a status code and writes it. Unexpected errors are
// logged and hidden from the client.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, validationResponse{Message: verr.Error(), Errors: verr.Fields})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, search.ErrUnknownEntity):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, search.ErrIndexNotConfigured):
		log.Print(r.Context(), log.KV{K: "msg", V: "search requested before configure-indexes"}, log.KV{K: "error", V: err.Error()})
		respondError(w, http.StatusServiceUnavailable, "Search index is not configured")
	case errors.Is(err, search.ErrPageOutOfRange):
		verr := &ValidationError{}
		verr.Add("page", "The page field is out of range.")
		respondJSON(w, http.StatusUnprocessableEntity, validationResponse{Message: verr.Error(), Errors: verr.Fields})
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error(r.Context(), err, log.KV{K: "msg", V: "request failed"}, log.KV{K: "path", V: r.URL.Path})
		respondError(w, http.StatusInternalServerError, "Server Error")
	}
}
