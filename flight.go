package phoneauth

import "sync"

// flightState is the lifecycle position of the engine's single in-flight
// challenge.
type flightState uint8

const (
	flightIdle flightState = iota
	flightSending
	flightAwaitingCode
	flightVerifying
)

func (s flightState) String() string {
	switch s {
	case flightIdle:
		return "idle"
	case flightSending:
		return "sending"
	case flightAwaitingCode:
		return "awaiting_code"
	case flightVerifying:
		return "verifying"
	default:
		return "unknown"
	}
}

// flightGuard serializes the OTP lifecycle. At most one challenge exists
// per engine; a second send or an overlapping confirm is refused rather
// than queued, because providers penalize rapid repeated attempts.
//
// The guard also owns the live provider session for the current
// challenge. Widget and plugin sessions are process-local objects that
// cannot be parked in Redis, so they live here, keyed by challenge ID.
type flightGuard struct {
	mu          sync.Mutex
	state       flightState
	challengeID string
	phoneNumber string
	provider    ChallengeProviderKind
	session     ChallengeSession
}

// beginSend moves Idle -> Sending. Any other starting state reports the
// operation currently holding the guard.
func (g *flightGuard) beginSend() (ok bool, current flightState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != flightIdle {
		return false, g.state
	}
	g.state = flightSending
	return true, flightSending
}

// sendSucceeded moves Sending -> AwaitingCode and parks the live session.
func (g *flightGuard) sendSucceeded(challengeID, phoneNumber string, provider ChallengeProviderKind, session ChallengeSession) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = flightAwaitingCode
	g.challengeID = challengeID
	g.phoneNumber = phoneNumber
	g.provider = provider
	g.session = session
}

// sendFailed returns the guard to Idle after a failed dispatch.
func (g *flightGuard) sendFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
}

// beginConfirm moves AwaitingCode -> Verifying for the given challenge
// and hands out the live session. A mismatched ID means the handle is
// stale.
func (g *flightGuard) beginConfirm(challengeID string) (session ChallengeSession, ok bool, current flightState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != flightAwaitingCode {
		return nil, false, g.state
	}
	if g.challengeID != challengeID {
		return nil, false, flightIdle
	}
	g.state = flightVerifying
	return g.session, true, flightVerifying
}

// confirmFinished leaves Verifying. With retained true the challenge
// stays confirmable (wrong code, attempts left); otherwise the guard
// returns to Idle and drops the session.
func (g *flightGuard) confirmFinished(retained bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if retained {
		g.state = flightAwaitingCode
		return
	}
	g.reset()
}

// cancel discards whatever is in flight and reports what was dropped.
func (g *flightGuard) cancel() (challengeID, phoneNumber string, hadFlight bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == flightIdle {
		return "", "", false
	}
	challengeID = g.challengeID
	phoneNumber = g.phoneNumber
	g.reset()
	return challengeID, phoneNumber, true
}

// snapshot reports the current state without taking ownership.
func (g *flightGuard) snapshot() (state flightState, challengeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state, g.challengeID
}

func (g *flightGuard) reset() {
	g.state = flightIdle
	g.challengeID = ""
	g.phoneNumber = ""
	g.provider = 0
	g.session = nil
}
