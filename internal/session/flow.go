package session

import (
	"context"
	"log"
	"sync"

	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/utils"
)

// AgentLookup resolves the agent directory entry for an account.
// It returns (nil, nil) when the account has no entry; errors are reserved
// for lookup failures.
type AgentLookup interface {
	FindAgentByUserID(ctx context.Context, userID utils.SixID) (*models.Agent, error)
}

// Navigator receives the navigation side effect of a session decision.
type Navigator interface {
	Navigate(path string)
}

// Flow applies session events to a Store and performs at most one navigation
// per qualifying event. Each event bumps a generation counter; a lookup that
// resolves after a newer event has arrived is discarded, so signing out while
// a lookup is in flight never causes a late redirect.
type Flow struct {
	store  *Store
	lookup AgentLookup
	nav    Navigator

	mu  sync.Mutex
	gen uint64
}

func NewFlow(store *Store, lookup AgentLookup, nav Navigator) *Flow {
	return &Flow{
		store:  store,
		lookup: lookup,
		nav:    nav,
	}
}

// Handle applies one session event. It blocks for the duration of the agent
// lookup on qualifying sign-ins; callers wanting async behavior run it in a
// goroutine, concurrent calls are safe.
func (f *Flow) Handle(ctx context.Context, ev Event) Decision {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	switch ev.Kind {
	case EventSignedOut:
		f.store.setAccount(nil)
		return Decision{}
	case EventInitialSession:
		// Restoring a session populates state but never navigates;
		// only a fresh sign-in qualifies for the setup redirect.
		f.store.setAccount(ev.Account)
		return Decision{}
	case EventSignedIn:
		f.store.setAccount(ev.Account)
		if ev.Account == nil || !ev.Account.IsAgent {
			return Decision{}
		}

		f.store.setLoading(true)
		profile, err := f.lookup.FindAgentByUserID(ctx, ev.Account.ID)
		f.store.setLoading(false)

		f.mu.Lock()
		stale := gen != f.gen
		f.mu.Unlock()
		if stale {
			// A newer event superseded this sign-in while the lookup
			// was in flight. Its result must not navigate.
			return Decision{}
		}

		decision := Decide(ev, profile, err)
		if decision.LookupFailed {
			log.Printf("WARN: agent profile lookup failed for user %s, redirecting to setup: %v", ev.Account.ID, err)
		}
		if decision.RedirectTo != "" {
			f.nav.Navigate(decision.RedirectTo)
		}
		return decision
	default:
		log.Printf("WARN: unknown session event kind: %s", ev.Kind)
		return Decision{}
	}
}
