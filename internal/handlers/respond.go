package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *models.ValidationError
		authz      *models.AuthorizationError
		notFound   *models.NotFoundError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: validation.Message, Field: validation.Field})
	case errors.As(err, &authz):
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Message: "user not authorized to perform that action"})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Message: notFound.Error()})
	default:
		observability.WithContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Message: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

// pageParams reads ?cursor= and ?per_page=
func pageParams(r *http.Request) (string, int) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return r.URL.Query().Get("cursor"), perPage
}

// setNextLink emits an RFC 5988 Link header pointing at the next page
func setNextLink(w http.ResponseWriter, r *http.Request, baseURL string, next *models.Cursor, perPage int) {
	if next == nil {
		return
	}

	q := url.Values{}
	q.Set("cursor", next.Encode())
	q.Set("per_page", strconv.Itoa(models.ClampPageSize(perPage)))
	w.Header().Set("Link", fmt.Sprintf(`<%s%s?%s>; rel="next"`, baseURL, r.URL.Path, q.Encode()))
}
