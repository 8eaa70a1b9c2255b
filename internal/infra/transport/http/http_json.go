package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

// MaxJSONBodySize limits request bodies decoded by DecodeJSON.
const MaxJSONBodySize = 1 << 20

// ErrBadJSON is returned when a request body is not the expected JSON.
var ErrBadJSON = domain.NewError(domain.KindValidation, "malformed JSON body")

//nolint:gochecknoglobals
var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:      http.StatusBadRequest,
	domain.KindUnauthenticated: http.StatusUnauthorized,
	domain.KindForbidden:       http.StatusForbidden,
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindConflict:        http.StatusConflict,
	domain.KindBackend:         http.StatusInternalServerError,
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Code is a domain.ErrorKind.
type ErrorDetail struct {
	Code    domain.ErrorKind  `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StatusFor returns the HTTP status code for err.
func StatusFor(err error) int {
	return kindStatus[domain.KindOf(err)]
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a JSON error envelope. Backend errors are logged
// and replaced by a generic message; for all other kinds the caller sees the
// message of the kinded error, not the wrapping around it.
func WriteError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	kind := domain.KindOf(err)

	detail := ErrorDetail{Code: kind, Message: domain.MessageOf(err)}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		detail.Message = domain.ErrValidation.Error()
		detail.Fields = verrs
	}

	if kind == domain.KindBackend {
		log.ErrorContext(r.Context(), "request failed", "error", err)

		detail.Message = "internal error"
	}

	WriteJSON(w, kindStatus[kind], ErrorBody{Error: detail})
}

// DecodeJSON decodes the request body into v. Unknown fields are rejected.
func DecodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %s", ErrBadJSON, ct)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadJSON, err)
	}

	return nil
}
