// Package session tracks the authenticated account for a client session and
// drives the agent onboarding redirect. Sign-in events for agent accounts
// trigger a directory lookup; accounts without a complete agent profile are
// sent to the setup page exactly once per sign-in.
package session

import (
	"time"

	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/utils"
)

// AgentSetupPath is where agents with missing or incomplete directory
// profiles are sent after signing in.
const AgentSetupPath = "/agent-setup"

// EventKind identifies a session transition.
type EventKind string

const (
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
)

// Account is the snapshot of the signed-in account carried by an event.
type Account struct {
	ID        utils.SixID
	Email     string
	FullName  string
	IsAgent   bool
	CreatedAt time.Time
}

// Event is a session transition with the account it applies to.
// Account is nil for signed-out transitions and sessionless initial loads.
type Event struct {
	Kind    EventKind
	Account *Account
}

// State is the session state exposed to callers.
type State struct {
	Account *Account
	Loading bool // True while a provisioning lookup is in flight
}

// Authenticated reports whether the session has a signed-in account.
func (s State) Authenticated() bool {
	return s.Account != nil
}

// Decision is the navigation outcome of a session event.
type Decision struct {
	RedirectTo   string // Empty when no navigation should happen
	LookupFailed bool   // The agent lookup errored; redirect is conservative
}

// Decide maps a session event plus the looked-up agent profile to a
// navigation decision. It is pure: no I/O, no state. The profile argument is
// nil when the account has no directory entry; lookupErr reports a failed
// lookup, which is treated the same as a missing entry so a broken lookup
// never strands an agent outside setup.
func Decide(ev Event, profile *models.Agent, lookupErr error) Decision {
	if ev.Kind != EventSignedIn || ev.Account == nil || !ev.Account.IsAgent {
		return Decision{}
	}
	if lookupErr != nil {
		return Decision{RedirectTo: AgentSetupPath, LookupFailed: true}
	}
	if profile == nil || !profile.ProfileComplete() {
		return Decision{RedirectTo: AgentSetupPath}
	}
	return Decision{}
}
