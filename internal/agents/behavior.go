// Agent behaviours, run by the dispatcher at each subscription's hour.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

const (
	driftAmplitude = 0.2  // fair price moves within ±20% of base
	driftFrequency = 0.05 // noise units per simulated day

	householdBudgetShare = 0.5  // of current money, per shopping trip
	householdPriceLimit  = 1.5  // times the fair price
	dealerBuyBelow       = 0.95 // buy when the book is this far under fair
	dealerOfferAt        = 1.02 // re-offer holdings at this multiple of fair
)

// fxRates are reference values of one unit of each currency in EUR.
var fxRates = map[economy.Currency]float64{
	economy.EUR: 1,
	economy.USD: 0.9,
	economy.YEN: 0.006,
}

// FXRate returns the reference price of one unit of fx in cur. Unknown
// currencies trade at par.
func FXRate(fx, cur economy.Currency) float64 {
	a, ok := fxRates[fx]
	if !ok {
		a = 1
	}
	b, ok := fxRates[cur]
	if !ok {
		b = 1
	}
	return a / b
}

// drift returns the smooth price multiplier for key at now.
func (p *Population) drift(key float64, now clock.Instant) float64 {
	days := now.Time().Sub(p.sim.Clock.Start().Time()).Hours() / 24
	n := p.noise.Eval2(days*driftFrequency, key*7.3)
	return 1 - driftAmplitude + 2*driftAmplitude*n
}

// FairPrice is the drifting reference price of c in cur at now.
func (p *Population) FairPrice(c economy.Commodity, cur economy.Currency, now clock.Instant) float64 {
	switch c.Kind {
	case economy.KindGood:
		return c.Good.BasePrice() * p.drift(float64(c.Good), now)
	case economy.KindCurrency:
		return FXRate(c.Currency, cur) * p.drift(100+FXRate(c.Currency, economy.EUR), now)
	default:
		return 1
	}
}

// offerHoldings replaces a's offers on (cur, c) with one order for its whole
// holding of c at price.
func (p *Population) offerHoldings(a *Agent, c economy.Commodity, price float64) error {
	p.sim.Markets.RemoveAll(a.ID, economy.Filter{Currency: a.Currency, Commodity: c})
	stock := p.bank.Balance(a.ID, c)
	if stock <= economy.Epsilon {
		return nil
	}
	o, err := economy.NewOrder(a.Delegate(), c, a.Currency, price, stock)
	if err != nil {
		return fmt.Errorf("%s offer %s: %w", a.Name, c, err)
	}
	return p.sim.Markets.Place(o)
}

// produce credits the day's output and re-offers the firm's whole stock.
func (p *Population) produce(a *Agent) engine.Handler {
	return func(now clock.Instant) error {
		good := economy.Good(a.Good)
		if err := p.bank.Deposit(a.ID, good, a.Output); err != nil {
			return fmt.Errorf("%s produce: %w", a.Name, err)
		}
		price := p.FairPrice(good, a.Currency, now) * (1 + a.Markup)
		return p.offerHoldings(a, good, price)
	}
}

// shop buys up to the daily demand within budget and price limit, then
// consumes everything held.
func (p *Population) shop(a *Agent) engine.Handler {
	return func(now clock.Instant) error {
		good := economy.Good(a.Good)
		book := p.sim.Markets.Book(a.Currency, good)
		budget := p.bank.Money(a.ID, a.Currency) * householdBudgetShare
		limit := p.FairPrice(good, a.Currency, now) * householdPriceLimit

		res := p.sim.Matcher.Buy(book, a.Demand, budget, limit, a.Delegate())
		consumed := p.bank.WithdrawAll(a.ID, good)
		if res.Err != nil {
			return fmt.Errorf("%s shop %s: %w", a.Name, a.Good, res.Err)
		}
		if res.Amount > economy.Epsilon {
			p.logger.Debug("household shopped",
				"agent", a.Name,
				"good", a.Good.String(),
				"amount", res.Amount,
				"avg_price", res.AveragePrice(),
				"consumed", consumed,
			)
		}
		return nil
	}
}

func (p *Population) payday(a *Agent) engine.Handler {
	return func(clock.Instant) error {
		return p.bank.Deposit(a.ID, economy.CurrencyCommodity(a.Currency), a.Income)
	}
}

// arbitrage buys c from other sellers below fair price and re-offers
// everything the dealer holds slightly above it.
func (p *Population) arbitrage(a *Agent, c economy.Commodity) engine.Handler {
	return func(now clock.Instant) error {
		fair := p.FairPrice(c, a.Currency, now)
		book := p.sim.Markets.Book(a.Currency, c)
		budget := p.bank.Money(a.ID, a.Currency) * householdBudgetShare

		res := p.sim.Matcher.Buy(book, math.NaN(), budget, fair*dealerBuyBelow, a.Delegate())
		if err := p.offerHoldings(a, c, fair*dealerOfferAt); err != nil {
			return err
		}
		if res.Err != nil {
			return fmt.Errorf("%s arbitrage %s: %w", a.Name, c, res.Err)
		}
		return nil
	}
}
