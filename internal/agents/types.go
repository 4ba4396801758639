// Package agents provides the reference trading parties that drive the
// economy: firms that produce and offer goods, households that buy them, and
// dealers that arbitrage books and quote foreign currency.
package agents

import (
	"errors"

	"github.com/talgya/mini-economy/internal/banking"
	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

// ErrUnknownAgent is returned when an agent ID is not in the population.
var ErrUnknownAgent = errors.New("unknown agent")

// Role determines which behaviours an agent subscribes.
type Role uint8

const (
	RoleFirm      Role = iota // Produces one good and offers its stock
	RoleHousehold             // Buys and consumes one good, paid monthly
	RoleDealer                // Buys cheap, re-offers at fair price, quotes FX
)

func (r Role) String() string {
	switch r {
	case RoleFirm:
		return "firm"
	case RoleHousehold:
		return "household"
	case RoleDealer:
		return "dealer"
	default:
		return "unknown"
	}
}

// Agent is one trading party. Its Delegate is its bank account.
type Agent struct {
	ID       economy.AgentID  `json:"id"`
	Name     string           `json:"name"`
	Role     Role             `json:"role"`
	Good     economy.GoodType `json:"good"`
	Currency economy.Currency `json:"currency"`
	Alive    bool             `json:"alive"`
	BornAt   clock.Instant    `json:"born_at"`

	// Firm
	Output float64 `json:"output,omitempty"` // units produced per day
	Markup float64 `json:"markup,omitempty"` // over the drifting fair price

	// Household
	Demand float64 `json:"demand,omitempty"` // units wanted per day
	Income float64 `json:"income,omitempty"` // money credited on the 1st

	// Dealer
	FX economy.Currency `json:"fx,omitempty"` // foreign currency quoted

	account *banking.Account
	subs    []*engine.Subscription
}

// Delegate returns the settlement handle used for the agent's orders and
// purchases.
func (a *Agent) Delegate() economy.Delegate { return a.account }

// Subscriptions returns the agent's live calendar subscriptions.
func (a *Agent) Subscriptions() []*engine.Subscription { return a.subs }

func (a *Agent) alive() bool { return a.Alive }
