package serverdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	phoneauth "github.com/stayhq/phoneauth"
	"github.com/stayhq/phoneauth/internal"
)

// Wire-level error codes. The client maps these back to sentinel errors.
const (
	codeInvalidPhone     = "auth/invalid-phone-number"
	codeInvalidCode      = "auth/invalid-verification-code"
	codeCodeExpired      = "auth/code-expired"
	codeTooManyRequests  = "auth/too-many-requests"
	codeInternal         = "auth/internal-error"
	codeMalformedRequest = "auth/invalid-request"
)

// Sender delivers an OTP over SMS. Delivery providers plug in here.
type Sender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// Server is the HTTP dispatch service. It issues codes on /send-otp and
// verifies them on /verify-otp.
type Server struct {
	store              *Store
	sender             Sender
	log                zerolog.Logger
	otpDigits          int
	defaultCountryCode string
}

// ServerConfig tunes a Server.
type ServerConfig struct {
	OTPDigits          int
	DefaultCountryCode string
	Logger             zerolog.Logger
}

// NewServer builds a dispatch service over store and sender.
func NewServer(store *Store, sender Sender, cfg ServerConfig) (*Server, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	if sender == nil {
		return nil, errors.New("sender required")
	}
	if cfg.OTPDigits == 0 {
		cfg.OTPDigits = 6
	}
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = "+91"
	}

	return &Server{
		store:              store,
		sender:             sender,
		log:                cfg.Logger,
		otpDigits:          cfg.OTPDigits,
		defaultCountryCode: cfg.DefaultCountryCode,
	}, nil
}

// Routes mounts the dispatch endpoints on a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/send-otp", s.handleSend)
	r.Post("/verify-otp", s.handleVerify)

	return r
}

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedRequest)
		return
	}

	phone, err := phoneauth.NormalizePhoneNumber(req.PhoneNumber, s.defaultCountryCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPhone)
		return
	}

	code, err := internal.NewOTP(s.otpDigits)
	if err != nil {
		s.log.Error().Err(err).Msg("otp generation failed")
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if err := s.store.Issue(r.Context(), phone, code); err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("code issue failed")
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	if err := s.sender.Send(r.Context(), phone, code); err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("sms delivery failed")
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	s.log.Info().Str("phone", phone).Msg("code dispatched")
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedRequest)
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusUnauthorized, codeInvalidCode)
		return
	}

	phone, err := phoneauth.NormalizePhoneNumber(req.PhoneNumber, s.defaultCountryCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPhone)
		return
	}

	switch err := s.store.Consume(r.Context(), phone, req.Code); {
	case err == nil:
		s.log.Info().Str("phone", phone).Msg("code verified")
		writeJSON(w, http.StatusOK, statusResponse{Status: "verified"})
	case errors.Is(err, ErrCodeMismatch):
		writeError(w, http.StatusUnauthorized, codeInvalidCode)
	case errors.Is(err, ErrAttemptsExceeded):
		writeError(w, http.StatusTooManyRequests, codeTooManyRequests)
	case errors.Is(err, ErrCodeNotFound):
		writeError(w, http.StatusGone, codeCodeExpired)
	default:
		s.log.Error().Err(err).Str("phone", phone).Msg("code verify failed")
		writeError(w, http.StatusInternalServerError, codeInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}
