package nativebridge

import (
	"context"
	"errors"
	"fmt"

	phoneauth "github.com/stayhq/phoneauth"
)

// Invoker is the host-side handle to a shell plugin. Call dispatches a
// named plugin method with keyword arguments; Supports probes whether
// the plugin build carries the method at all.
type Invoker interface {
	Call(ctx context.Context, method string, args map[string]any) (map[string]any, error)
	Supports(method string) bool
}

// Shape selects the plugin call convention.
type Shape uint8

const (
	// ShapeVerification is the two-step startVerification/verifyCode
	// convention of newer plugin builds.
	ShapeVerification Shape = iota
	// ShapeSignIn is the signInWithPhoneNumber and
	// signInWithVerificationCode convention of older builds.
	ShapeSignIn
)

func (s Shape) String() string {
	switch s {
	case ShapeVerification:
		return "verification"
	case ShapeSignIn:
		return "sign_in"
	default:
		return "unknown"
	}
}

// Provider bridges an Invoker to phoneauth.NativePluginProvider.
type Provider struct {
	invoker Invoker
	start   string
	confirm string
}

var _ phoneauth.NativePluginProvider = (*Provider)(nil)

// New builds a bridge for the given call shape.
func New(invoker Invoker, shape Shape) (*Provider, error) {
	if invoker == nil {
		return nil, errors.New("invoker required")
	}

	p := &Provider{invoker: invoker}
	switch shape {
	case ShapeVerification:
		p.start = "startVerification"
		p.confirm = "verifyCode"
	case ShapeSignIn:
		p.start = "signInWithPhoneNumber"
		p.confirm = "signInWithVerificationCode"
	default:
		return nil, fmt.Errorf("unknown plugin shape %d", shape)
	}
	return p, nil
}

// Available reports whether the plugin carries both methods of the
// configured shape. Probed per call so a shell hot-swap is picked up.
func (p *Provider) Available() bool {
	return p.invoker.Supports(p.start) && p.invoker.Supports(p.confirm)
}

// StartVerification asks the plugin to dispatch an OTP and returns a
// session bound to the plugin verification ID.
func (p *Provider) StartVerification(ctx context.Context, phoneNumber string) (phoneauth.ChallengeSession, error) {
	if !p.Available() {
		return nil, phoneauth.ErrPluginUnavailable
	}

	reply, err := p.invoker.Call(ctx, p.start, map[string]any{
		"phoneNumber": phoneNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", p.start, err)
	}

	verificationID, _ := reply["verificationId"].(string)
	if verificationID == "" {
		return nil, fmt.Errorf("%w: plugin returned no verification id", phoneauth.ErrPluginUnavailable)
	}

	return &pluginSession{
		provider:       p,
		verificationID: verificationID,
		phoneNumber:    phoneNumber,
	}, nil
}

type pluginSession struct {
	provider       *Provider
	verificationID string
	phoneNumber    string
}

func (s *pluginSession) Confirm(ctx context.Context, code string) (*phoneauth.VerifiedResult, error) {
	reply, err := s.provider.invoker.Call(ctx, s.provider.confirm, map[string]any{
		"verificationId": s.verificationID,
		"code":           code,
	})
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", s.provider.confirm, err)
	}

	principalID, _ := reply["uid"].(string)
	phone, _ := reply["phoneNumber"].(string)
	if phone == "" {
		phone = s.phoneNumber
	}

	return &phoneauth.VerifiedResult{
		PrincipalID: principalID,
		PhoneNumber: phone,
	}, nil
}
