// Agent spawning: creates the initial population, opens bank accounts and
// subscribes each agent's behaviours on the calendar.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/mini-economy/internal/banking"
	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

// SpawnConfig controls initial population generation.
type SpawnConfig struct {
	Firms         int
	Households    int
	Dealers       int
	Currency      economy.Currency
	StartingMoney float64 // households and dealers
}

// DefaultSpawnConfig is a small population covering every good.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Firms:         9,
		Households:    27,
		Dealers:       3,
		Currency:      economy.EUR,
		StartingMoney: 500,
	}
}

// Population owns the agents of one simulation run.
type Population struct {
	sim    *engine.Simulation
	bank   *banking.Bank
	noise  opensimplex.Noise
	logger *slog.Logger

	agents map[economy.AgentID]*Agent
	order  []*Agent
	counts map[Role]int
}

// NewPopulation creates an empty population trading through bank.
func NewPopulation(sim *engine.Simulation, bank *banking.Bank, logger *slog.Logger) *Population {
	if logger == nil {
		logger = slog.Default()
	}
	return &Population{
		sim:    sim,
		bank:   bank,
		noise:  opensimplex.NewNormalized(sim.Rand.Seed()),
		logger: logger.With("component", "agents"),
		agents: make(map[economy.AgentID]*Agent),
		counts: make(map[Role]int),
	}
}

// Spawn creates cfg's firms, households and dealers. Goods are assigned
// round-robin so that every produced good has buyers.
func (p *Population) Spawn(cfg SpawnConfig) error {
	goods := economy.AllGoods()
	fx := []economy.Currency{economy.USD, economy.YEN, economy.EUR}

	for i := 0; i < cfg.Firms; i++ {
		g := goods[i%len(goods)]
		output := 5 + float64(p.sim.Rand.IntRange(0, 10))
		markup := 0.05 + 0.15*p.sim.Rand.Float()
		if _, err := p.AddFirm(g, cfg.Currency, output, markup); err != nil {
			return err
		}
	}
	for i := 0; i < cfg.Households; i++ {
		g := goods[i%len(goods)]
		demand := 1 + float64(p.sim.Rand.IntRange(0, 3))
		income := demand * g.BasePrice() * 30
		if _, err := p.AddHousehold(g, cfg.Currency, demand, income, cfg.StartingMoney); err != nil {
			return err
		}
	}
	for i := 0; i < cfg.Dealers; i++ {
		g := goods[i%len(goods)]
		foreign := fx[i%len(fx)]
		if foreign == cfg.Currency {
			foreign = fx[(i+1)%len(fx)]
		}
		if _, err := p.AddDealer(g, cfg.Currency, foreign, cfg.StartingMoney); err != nil {
			return err
		}
	}

	p.logger.Info("population spawned",
		"firms", cfg.Firms,
		"households", cfg.Households,
		"dealers", cfg.Dealers,
		"currency", cfg.Currency,
	)
	return nil
}

func (p *Population) newAgent(role Role, g economy.GoodType, cur economy.Currency) (*Agent, error) {
	// IDs come from the run's seeded stream so a replayed run names agents
	// identically.
	id, err := uuid.NewRandomFromReader(p.sim.Rand)
	if err != nil {
		return nil, fmt.Errorf("agent id: %w", err)
	}
	p.counts[role]++
	a := &Agent{
		ID:       economy.AgentID(id.String()),
		Name:     fmt.Sprintf("%s-%d", role, p.counts[role]),
		Role:     role,
		Good:     g,
		Currency: cur,
		Alive:    true,
		BornAt:   p.sim.Now(),
	}
	a.account = p.bank.Open(a.ID)
	p.agents[a.ID] = a
	p.order = append(p.order, a)
	return a, nil
}

// AddFirm creates a firm producing output units of g per day, offered at the
// fair price plus markup.
func (p *Population) AddFirm(g economy.GoodType, cur economy.Currency, output, markup float64) (*Agent, error) {
	a, err := p.newAgent(RoleFirm, g, cur)
	if err != nil {
		return nil, err
	}
	a.Output, a.Markup = output, markup
	err = p.schedule(a, "produce", clock.Daily(p.sim.Clock.SuggestRandomHour(5, 9)), p.produce(a))
	return a, err
}

// AddHousehold creates a household buying demand units of g per day and
// receiving income on the 1st of every month.
func (p *Population) AddHousehold(g economy.GoodType, cur economy.Currency, demand, income, money float64) (*Agent, error) {
	a, err := p.newAgent(RoleHousehold, g, cur)
	if err != nil {
		return nil, err
	}
	a.Demand, a.Income = demand, income
	if err := p.bank.Deposit(a.ID, economy.CurrencyCommodity(cur), money); err != nil {
		return nil, err
	}
	if err := p.schedule(a, "shop", clock.Daily(p.sim.Clock.SuggestRandomHour(10, 20)), p.shop(a)); err != nil {
		return nil, err
	}
	err = p.schedule(a, "payday", clock.Monthly(1, p.sim.Clock.SuggestRandomHour(0, 4)), p.payday(a))
	return a, err
}

// AddDealer creates a dealer arbitraging g and quoting fx against cur. The
// dealer starts with money and a float of the foreign currency.
func (p *Population) AddDealer(g economy.GoodType, cur, fx economy.Currency, money float64) (*Agent, error) {
	a, err := p.newAgent(RoleDealer, g, cur)
	if err != nil {
		return nil, err
	}
	a.FX = fx
	if err := p.bank.Deposit(a.ID, economy.CurrencyCommodity(cur), money); err != nil {
		return nil, err
	}
	if err := p.bank.Deposit(a.ID, economy.CurrencyCommodity(fx), money/FXRate(fx, cur)); err != nil {
		return nil, err
	}
	if err := p.schedule(a, "arbitrage", clock.Daily(p.sim.Clock.SuggestRandomHour(12, 23)), p.arbitrage(a, economy.Good(g))); err != nil {
		return nil, err
	}
	err = p.schedule(a, "quote-fx", clock.Daily(p.sim.Clock.SuggestRandomHour(6, 8)), p.arbitrage(a, economy.CurrencyCommodity(fx)))
	return a, err
}

func (p *Population) schedule(a *Agent, task string, rec clock.Recurrence, h engine.Handler) error {
	sub := &engine.Subscription{
		Name:    a.Name + ":" + task,
		Handler: h,
		Alive:   a.alive,
	}
	if err := p.sim.Calendar.Schedule(sub, rec); err != nil {
		return fmt.Errorf("agent %s: %w", a.Name, err)
	}
	a.subs = append(a.subs, sub)
	return nil
}

// Deconstruct takes an agent out of the economy: its subscriptions are
// cancelled, its offers withdrawn from every book and its account closed.
// Returns how many offers were withdrawn. Deconstructing twice is a no-op.
func (p *Population) Deconstruct(id economy.AgentID) (int, error) {
	a, ok := p.agents[id]
	if !ok {
		return 0, fmt.Errorf("deconstruct %s: %w", id, ErrUnknownAgent)
	}
	if !a.Alive {
		return 0, nil
	}
	a.Alive = false
	for _, sub := range a.subs {
		p.sim.Calendar.Remove(sub)
	}
	a.subs = nil
	n := p.sim.Markets.RemoveAll(a.ID, economy.Filter{})
	p.bank.Close(a.ID)

	p.logger.Info("agent deconstructed", "agent", a.Name, "id", a.ID, "offers_withdrawn", n)
	return n, nil
}

// Get looks up an agent.
func (p *Population) Get(id economy.AgentID) (*Agent, bool) {
	a, ok := p.agents[id]
	return a, ok
}

// All returns every agent in spawn order, including deconstructed ones.
func (p *Population) All() []*Agent { return p.order }

// Living returns the number of agents still in the economy.
func (p *Population) Living() int {
	n := 0
	for _, a := range p.order {
		if a.Alive {
			n++
		}
	}
	return n
}
