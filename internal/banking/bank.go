// Package banking is the reference settlement bridge: it keeps every
// party's money, goods and property holdings and moves them in pairs when the
// match engine commits a fill.
//
// Balances are decimal so that repeated fractional fills do not drift.
package banking

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-economy/internal/economy"
)

// Account is one party's holdings at the bank. It is the economy.Delegate
// handed to the match engine.
type Account struct {
	owner    economy.AgentID
	bank     *Bank
	balances map[string]decimal.Decimal // commodity key -> amount
}

// OwnerID implements economy.Delegate.
func (a *Account) OwnerID() economy.AgentID { return a.owner }

func (a *Account) balance(c economy.Commodity) decimal.Decimal {
	return a.balances[c.Key()]
}

func (a *Account) add(c economy.Commodity, d decimal.Decimal) {
	k := c.Key()
	v := a.balances[k].Add(d)
	if v.IsZero() {
		delete(a.balances, k)
		return
	}
	a.balances[k] = v
}

// Bank holds the accounts of one simulation run.
type Bank struct {
	accounts map[economy.AgentID]*Account
	logger   *slog.Logger
}

// NewBank creates an empty bank.
func NewBank(logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bank{
		accounts: make(map[economy.AgentID]*Account),
		logger:   logger.With("component", "bank"),
	}
}

// Open returns the account of owner, creating it if needed.
func (b *Bank) Open(owner economy.AgentID) *Account {
	if a, ok := b.accounts[owner]; ok {
		return a
	}
	a := &Account{owner: owner, bank: b, balances: make(map[string]decimal.Decimal)}
	b.accounts[owner] = a
	return a
}

// Account looks up an existing account.
func (b *Bank) Account(owner economy.AgentID) (*Account, bool) {
	a, ok := b.accounts[owner]
	return a, ok
}

// Close removes the account of owner. Holdings are discarded.
func (b *Bank) Close(owner economy.AgentID) {
	if a, ok := b.accounts[owner]; ok {
		a.bank = nil
		delete(b.accounts, owner)
	}
}

// Deposit credits amount of c to owner, opening the account if needed.
func (b *Bank) Deposit(owner economy.AgentID, c economy.Commodity, amount float64) error {
	if amount < 0 || c.IsZero() {
		return fmt.Errorf("deposit %v of %s: invalid amount", amount, c)
	}
	b.Open(owner).add(c, decimal.NewFromFloat(amount))
	return nil
}

// Withdraw debits amount of c from owner.
func (b *Bank) Withdraw(owner economy.AgentID, c economy.Commodity, amount float64) error {
	a, ok := b.accounts[owner]
	if !ok {
		return fmt.Errorf("withdraw from %s: %w", owner, economy.ErrInvalidOwnership)
	}
	d := decimal.NewFromFloat(amount)
	if d.IsNegative() {
		return fmt.Errorf("withdraw %v of %s: invalid amount", amount, c)
	}
	if a.balance(c).LessThan(d) {
		if c.Kind == economy.KindCurrency {
			return fmt.Errorf("withdraw %v %s from %s: %w", amount, c.Currency, owner, economy.ErrInsufficientFunds)
		}
		return fmt.Errorf("withdraw %v of %s from %s: %w", amount, c, owner, economy.ErrInvalidOwnership)
	}
	a.add(c, d.Neg())
	return nil
}

// WithdrawAll debits owner's entire holding of c and returns the amount.
func (b *Bank) WithdrawAll(owner economy.AgentID, c economy.Commodity) float64 {
	a, ok := b.accounts[owner]
	if !ok {
		return 0
	}
	d := a.balance(c)
	a.add(c, d.Neg())
	return d.InexactFloat64()
}

// Balance returns how much of c owner holds.
func (b *Bank) Balance(owner economy.AgentID, c economy.Commodity) float64 {
	a, ok := b.accounts[owner]
	if !ok {
		return 0
	}
	return a.balance(c).InexactFloat64()
}

// Money returns owner's balance in currency cur.
func (b *Bank) Money(owner economy.AgentID, cur economy.Currency) float64 {
	return b.Balance(owner, economy.CurrencyCommodity(cur))
}

// Supply returns the total amount of c held across all accounts.
func (b *Bank) Supply(c economy.Commodity) float64 {
	total := decimal.Zero
	for _, a := range b.accounts {
		total = total.Add(a.balance(c))
	}
	return total.InexactFloat64()
}

// Owners returns every account owner, sorted.
func (b *Bank) Owners() []economy.AgentID {
	out := make([]economy.AgentID, 0, len(b.accounts))
	for id := range b.accounts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset closes every account.
func (b *Bank) Reset() {
	for id := range b.accounts {
		b.Close(id)
	}
}

var epsilon = decimal.NewFromFloat(economy.Epsilon)

// withinHolding returns want, or held when want exceeds it by at most
// economy.Epsilon. ok is false for a larger shortfall.
func withinHolding(want, held decimal.Decimal) (decimal.Decimal, bool) {
	if !held.LessThan(want) {
		return want, true
	}
	if want.Sub(held).LessThanOrEqual(epsilon) {
		return held, true
	}
	return want, false
}

func (b *Bank) resolve(d economy.Delegate) (*Account, error) {
	a, ok := d.(*Account)
	if !ok || a.bank != b {
		return nil, fmt.Errorf("party %s has no account at this bank: %w", d.OwnerID(), economy.ErrInvalidOwnership)
	}
	return a, nil
}

// Transfer implements economy.SettlementBridge. The buyer pays
// Amount*PricePerUnit in the fill's currency and receives Amount of the
// commodity from the seller. Either both legs happen or neither does.
//
// Fills are sized in float64 by the match engine, so a leg that overshoots
// the holding it draws on by no more than economy.Epsilon is clamped to that
// holding instead of failing.
func (b *Bank) Transfer(f economy.Fill) error {
	seller, err := b.resolve(f.Seller)
	if err != nil {
		return err
	}
	buyer, err := b.resolve(f.Buyer)
	if err != nil {
		return err
	}

	money := economy.CurrencyCommodity(f.Currency)
	amount, ok := withinHolding(decimal.NewFromFloat(f.Amount), seller.balance(f.Commodity))
	if !ok {
		return fmt.Errorf("%s delivers %s %s: %w", seller.owner, amount.String(), f.Commodity, economy.ErrInvalidOwnership)
	}
	cost, ok := withinHolding(amount.Mul(decimal.NewFromFloat(f.PricePerUnit)), buyer.balance(money))
	if !ok {
		return fmt.Errorf("%s pays %s %s: %w", buyer.owner, cost.StringFixed(4), f.Currency, economy.ErrInsufficientFunds)
	}

	buyer.add(money, cost.Neg())
	seller.add(money, cost)
	seller.add(f.Commodity, amount.Neg())
	buyer.add(f.Commodity, amount)

	b.logger.Debug("settled",
		"seller", seller.owner,
		"buyer", buyer.owner,
		"commodity", f.Commodity.Key(),
		"amount", amount.String(),
		"cost", cost.StringFixed(4),
		"currency", f.Currency,
	)
	return nil
}
