package serverdispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	phoneauth "github.com/stayhq/phoneauth"
)

// Client exposes a dispatch service as a ServerDispatchProvider.
type Client struct {
	httpClient *resty.Client
}

var _ phoneauth.ServerDispatchProvider = (*Client)(nil)

// ClientOpts configures a Client.
type ClientOpts struct {
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
}

// NewClient builds a provider client for the dispatch service at
// opts.BaseURL.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		httpClient.SetAuthToken(opts.APIKey)
	}

	return &Client{httpClient: httpClient}, nil
}

// SendCode asks the service to dispatch a code to phoneNumber and
// returns a session addressed by that number.
func (c *Client) SendCode(ctx context.Context, phoneNumber string) (phoneauth.ChallengeSession, error) {
	var failure errorResponse

	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(sendRequest{PhoneNumber: phoneNumber}).
		SetError(&failure).
		Post("/send-otp")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", phoneauth.ErrNetworkOrTimeout, err)
	}
	if res.IsError() {
		return nil, dispatchError(res.StatusCode(), failure.Error)
	}

	return &dispatchSession{client: c, phoneNumber: phoneNumber}, nil
}

type dispatchSession struct {
	client      *Client
	phoneNumber string
}

func (s *dispatchSession) Confirm(ctx context.Context, code string) (*phoneauth.VerifiedResult, error) {
	var failure errorResponse

	res, err := s.client.httpClient.NewRequest().
		SetContext(ctx).
		SetBody(verifyRequest{PhoneNumber: s.phoneNumber, Code: code}).
		SetError(&failure).
		Post("/verify-otp")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", phoneauth.ErrNetworkOrTimeout, err)
	}
	if res.IsError() {
		return nil, dispatchError(res.StatusCode(), failure.Error)
	}

	return &phoneauth.VerifiedResult{PhoneNumber: s.phoneNumber}, nil
}

func dispatchError(status int, code string) error {
	switch code {
	case codeInvalidPhone:
		return phoneauth.ErrInvalidPhoneNumber
	case codeInvalidCode:
		return phoneauth.ErrInvalidCode
	case codeCodeExpired:
		return phoneauth.ErrCodeExpired
	case codeTooManyRequests:
		return phoneauth.ErrTooManyRequests
	}

	switch status {
	case http.StatusUnauthorized:
		return phoneauth.ErrInvalidCode
	case http.StatusGone:
		return phoneauth.ErrCodeExpired
	case http.StatusTooManyRequests:
		return phoneauth.ErrTooManyRequests
	}
	return fmt.Errorf("%w: dispatch service status %d (%s)", phoneauth.ErrChallengeInitFailure, status, code)
}
