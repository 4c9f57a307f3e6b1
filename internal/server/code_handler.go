package server

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/osonish/smsverify/internal/classify"
	"github.com/osonish/smsverify/internal/httputil"
)

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

type confirmCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// handleRequestCode normalizes the phone, generates a code, and dispatches
// it through the configured gateways. The code itself is never echoed back.
func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone is required")
		return
	}

	if cerr := s.svc.RequestCode(r.Context(), req.Phone); cerr != nil {
		s.writeClassified(w, r, cerr)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleConfirmCode validates a submitted code against the pending record.
func (s *Server) handleConfirmCode(w http.ResponseWriter, r *http.Request) {
	var req confirmCodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "phone and code are required")
		return
	}

	if cerr := s.svc.ConfirmCode(r.Context(), req.Phone, req.Code); cerr != nil {
		s.writeClassified(w, r, cerr)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// writeClassified maps a classified error to an HTTP status and a localized
// error envelope. Gateway credential and balance problems are reported as
// upstream failures; the client cannot fix them.
func (s *Server) writeClassified(w http.ResponseWriter, r *http.Request, cerr *classify.Error) {
	loc := s.requestLocale(r)

	resp := httputil.ErrorResponse{
		Code:            string(cerr.Code),
		Message:         cerr.Message(loc),
		SuggestedAction: cerr.SuggestedAction(loc),
		Retryable:       cerr.Retryable,
	}
	if cerr.Code == classify.CodeInvalid {
		remaining := cerr.Remaining
		resp.Remaining = &remaining
	}

	httputil.WriteJSON(w, statusFor(cerr.Code), resp)
}

func statusFor(code classify.Code) int {
	switch code {
	case classify.InvalidPhone, classify.CodeInvalid, classify.CodeExpired:
		return http.StatusBadRequest
	case classify.AlreadyPending, classify.TooManyAttempts:
		return http.StatusTooManyRequests
	case classify.AuthenticationFailed, classify.QuotaExceeded:
		return http.StatusBadGateway
	case classify.ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLocale picks the response language from the Accept-Language header,
// falling back to the configured default.
func (s *Server) requestLocale(r *http.Request) classify.Locale {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return s.locale
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return s.locale
	}
	return classify.MatchLocale(s.locale, tags...)
}
