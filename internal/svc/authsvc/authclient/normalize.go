package authclient

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mkrupp/joynest/internal/domain"
)

// codeKinds maps error codes seen from auth backends to kinds. Codes are
// matched case-insensitively.
//
//nolint:gochecknoglobals
var codeKinds = map[string]domain.ErrorKind{
	"invalid_token":           domain.KindUnauthenticated,
	"token_expired":           domain.KindUnauthenticated,
	"refresh_token_not_found": domain.KindUnauthenticated,
	"invalid_grant":           domain.KindUnauthenticated,
	"invalid_credentials":     domain.KindUnauthenticated,
	"session_not_found":       domain.KindUnauthenticated,
	"pgrst301":                domain.KindUnauthenticated,
	"pgrst302":                domain.KindUnauthenticated,
	"user_already_exists":     domain.KindConflict,
	"email_exists":            domain.KindConflict,
	"weak_password":           domain.KindValidation,
	"validation_failed":       domain.KindValidation,
	"over_request_rate_limit": domain.KindBackend,
}

// messageKinds maps message fragments to kinds when no code is recognised.
//
//nolint:gochecknoglobals
var messageKinds = []struct {
	fragment string
	kind     domain.ErrorKind
}{
	{"jwt", domain.KindUnauthenticated},
	{"token", domain.KindUnauthenticated},
	{"expired", domain.KindUnauthenticated},
	{"not authenticated", domain.KindUnauthenticated},
	{"invalid login credentials", domain.KindUnauthenticated},
	{"already registered", domain.KindConflict},
	{"already exists", domain.KindConflict},
}

//nolint:gochecknoglobals
var statusKinds = map[int]domain.ErrorKind{
	http.StatusBadRequest:          domain.KindValidation,
	http.StatusUnprocessableEntity: domain.KindValidation,
	http.StatusUnauthorized:        domain.KindUnauthenticated,
	http.StatusForbidden:           domain.KindForbidden,
	http.StatusNotFound:            domain.KindNotFound,
	http.StatusConflict:            domain.KindConflict,
}

// NormalizeError converts an error response into a domain.AuthError. It
// understands
//
//	{"error":{"code":"…","message":"…"}}
//	{"error":"invalid_grant","error_description":"…"}
//	{"code":"…","msg":"…"} and {"code":"…","message":"…"}
//	{"message":"…"}
//
// and plain text bodies. The kind is taken from the code, then the message,
// then the status code.
func NormalizeError(status int, body []byte) *domain.AuthError {
	code, message := extract(body)

	if message == "" {
		message = http.StatusText(status)
	}

	return &domain.AuthError{
		ErrKind: classify(status, code, message),
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func extract(body []byte) (code, message string) {
	if !gjson.ValidBytes(body) {
		return "", strings.TrimSpace(string(body))
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return "", strings.TrimSpace(doc.String())
	}

	if errVal := doc.Get("error"); errVal.IsObject() {
		return errVal.Get("code").String(), errVal.Get("message").String()
	} else if errVal.Type == gjson.String {
		if desc := doc.Get("error_description"); desc.Exists() {
			return errVal.String(), desc.String()
		}

		if !strings.ContainsAny(errVal.String(), " \t") {
			code = errVal.String()
		} else {
			message = errVal.String()
		}
	}

	if c := doc.Get("code"); c.Exists() && code == "" {
		code = c.String()
	}

	if code == "" {
		code = doc.Get("error_code").String()
	}

	for _, path := range []string{"message", "msg", "error_description"} {
		if message != "" {
			break
		}

		message = doc.Get(path).String()
	}

	return code, message
}

func classify(status int, code, message string) domain.ErrorKind {
	if code != "" {
		if kind, ok := codeKinds[strings.ToLower(code)]; ok {
			return kind
		}

		if kind := domain.ParseErrorKind(code); kind != domain.KindBackend {
			return kind
		}
	}

	lower := strings.ToLower(message)

	for _, mk := range messageKinds {
		if strings.Contains(lower, mk.fragment) {
			return mk.kind
		}
	}

	if kind, ok := statusKinds[status]; ok {
		return kind
	}

	return domain.KindBackend
}
