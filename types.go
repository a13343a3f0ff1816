package phoneauth

import (
	"context"
	"time"
)

// Role is the product role stored on a profile.
type Role string

const (
	// RoleOwner is a property owner.
	RoleOwner Role = "owner"
	// RoleResident is a resident of a managed property.
	RoleResident Role = "resident"
	// RoleGuest is an anonymous or not-yet-classified principal.
	RoleGuest Role = "guest"
)

// Principal is a signed-in identity as reported by the [IdentityProvider].
type Principal struct {
	ID          string
	DisplayName string
	Email       string
	PhoneNumber string
	Anonymous   bool
}

// UserProfile is the persisted record keyed by principal ID.
//
// PhoneVerified is true only immediately after a successful OTP
// confirmation for the stored PhoneNumber; any phone change resets it.
// ProfileStore implementations enforce that invariant.
type UserProfile struct {
	PrincipalID   string
	FullName      string
	Email         string
	PhoneNumber   string
	PhoneVerified bool
	Role          Role
	ReferralCode  string
	CreatedAt     time.Time
}

// VerifiedResult is produced by a successful confirmation.
type VerifiedResult struct {
	PrincipalID string
	PhoneNumber string
}

// ConfirmationHandle addresses one parked verification challenge. It
// stays valid across arbitrary other work between Send and Confirm; it is
// one-time use and never reused across phone numbers.
type ConfirmationHandle struct {
	ID          string
	PhoneNumber string
	Provider    ChallengeProviderKind
}

// ChallengeProviderKind identifies the backend mechanism that issues an
// OTP challenge.
type ChallengeProviderKind uint8

const (
	// ProviderInteractiveWeb is the browser widget flow.
	ProviderInteractiveWeb ChallengeProviderKind = iota
	// ProviderNativePlugin is the mobile-shell plugin flow.
	ProviderNativePlugin
	// ProviderServerDispatch is the server-side SMS dispatch flow.
	ProviderServerDispatch
)

func (k ChallengeProviderKind) String() string {
	switch k {
	case ProviderInteractiveWeb:
		return "interactive_web"
	case ProviderNativePlugin:
		return "native_plugin"
	case ProviderServerDispatch:
		return "server_dispatch"
	default:
		return "unknown"
	}
}

// Platform is the shell the client runs in. A plain mobile browser is
// PlatformWeb; the Android and iOS values mean the app shell itself.
type Platform uint8

const (
	// PlatformWeb is a standard browser, desktop or mobile.
	PlatformWeb Platform = iota
	// PlatformAndroid is the Android app shell.
	PlatformAndroid
	// PlatformIOS is the iOS app shell.
	PlatformIOS
)

// Environment is the runtime environment a send evaluates provider
// selection against. It is rebuilt per send, never cached.
type Environment struct {
	Platform        Platform
	InsideWebView   bool
	PluginAvailable bool
}

// Native reports whether the client runs inside a native app shell.
func (e Environment) Native() bool {
	return e.Platform == PlatformAndroid || e.Platform == PlatformIOS
}

// ChallengeSession is the provider-issued confirmation path for one
// challenge. Interactive and native sessions are live process-local
// objects; server-dispatch sessions are addressed by phone number.
type ChallengeSession interface {
	Confirm(ctx context.Context, code string) (*VerifiedResult, error)
}

// InteractiveChallengeProvider issues browser-widget challenges. The
// container ID names the DOM element the widget binds to.
type InteractiveChallengeProvider interface {
	Begin(ctx context.Context, containerID, phoneNumber string) (ChallengeSession, error)
}

// NativePluginProvider issues challenges through the mobile-shell plugin.
// Available is probed at call time; plugins report capability rather than
// crash when a method is missing.
type NativePluginProvider interface {
	Available() bool
	StartVerification(ctx context.Context, phoneNumber string) (ChallengeSession, error)
}

// ServerDispatchProvider issues challenges through the server-side SMS
// dispatch backend.
type ServerDispatchProvider interface {
	SendCode(ctx context.Context, phoneNumber string) (ChallengeSession, error)
}

// IdentityProvider is the identity backend the facade wraps. Any
// Firebase-like service can implement it; the identity subpackage ships a
// reference implementation.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Principal, error)
	CreateAccount(ctx context.Context, email, password string) (*Principal, error)
	SignInAnonymous(ctx context.Context) (*Principal, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// DeleteIdentity removes the identity. Implementations return an error
	// matching ErrReauthenticationRequired when the provider demands a
	// recent sign-in.
	DeleteIdentity(ctx context.Context, principalID string) error
	// OnSessionChange registers a session subscriber and returns its
	// unsubscribe function. The callback receives nil when the session is
	// cleared.
	OnSessionChange(fn func(*Principal)) (unsubscribe func())
}

// ProfileStore is a document-per-principal store with atomic field-level
// updates and merge-on-write semantics.
type ProfileStore interface {
	Get(ctx context.Context, principalID string) (*UserProfile, error)
	Create(ctx context.Context, profile *UserProfile) error
	// SetVerifiedPhone sets PhoneNumber and PhoneVerified=true in a single
	// document update and returns the updated profile.
	SetVerifiedPhone(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error)
	// UpdatePhoneNumber changes the stored phone number and resets
	// PhoneVerified to false in the same update.
	UpdatePhoneNumber(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error)
	Delete(ctx context.Context, principalID string) error
}

// SignUpRequest is the input for [Engine.SignUp].
type SignUpRequest struct {
	FullName     string
	Email        string
	Password     string
	PhoneNumber  string
	Role         Role
	ReferralCode string
}

// SessionUpdate is delivered to session watchers. Profile is nil while
// loading, after sign-out, and for anonymous principals.
type SessionUpdate struct {
	Principal *Principal
	Profile   *UserProfile
}
