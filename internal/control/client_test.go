package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talgya/mini-economy/internal/agents"
	"github.com/talgya/mini-economy/internal/api"
	"github.com/talgya/mini-economy/internal/banking"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

func newAPI(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bank := banking.NewBank(log)
	sim := engine.NewSimulation(engine.Options{Seed: 2, Settlement: bank, Logger: log})
	pop := agents.NewPopulation(sim, bank, log)
	if _, err := pop.AddFirm(economy.GoodCoal, economy.EUR, 5, 0); err != nil {
		t.Fatal(err)
	}
	eng := engine.NewEngine(sim)
	srv := &api.Server{Eng: eng, Pop: pop, Bank: bank, AdminKey: "k", Logger: log}
	h, err := srv.Handler()
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, eng
}

func TestSubmitQueuesExternalEvent(t *testing.T) {
	ts, eng := newAPI(t)
	c := NewClient(ts.URL, "k")
	ctx := context.Background()

	r, err := c.Submit(ctx, &Intervention{Kind: "note", Message: "market open"})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Queued || r.Position != 1 || r.RunsAt != "2000-01-02 00h" {
		t.Errorf("receipt = %+v", r)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ExternalPending != 1 || st.Agents != 1 {
		t.Errorf("status = %+v", st)
	}

	eng.RunFor(24)
	st, err = c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ExternalPending != 0 || st.Stats.ExternalEvents != 1 || st.SimTime != "2000-01-02 00h" {
		t.Errorf("after a day: %+v", st)
	}
}

func TestMarketsAndSpeed(t *testing.T) {
	ts, eng := newAPI(t)
	c := NewClient(ts.URL, "k")
	ctx := context.Background()
	eng.RunFor(12)

	q, err := c.Markets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 1 || q[0].Book != "EUR/good:coal" || q[0].AmountSum != 5 {
		t.Errorf("quotes = %+v", q)
	}

	v, err := c.SetSpeed(ctx, 3)
	if err != nil || v != 3 || eng.Speed() != 3 {
		t.Errorf("SetSpeed = %v, %v", v, err)
	}
}

func TestBadKeyIsStatusError(t *testing.T) {
	ts, _ := newAPI(t)
	c := NewClient(ts.URL, "wrong")
	_, err := c.Submit(context.Background(), &Intervention{Kind: "note", Message: "x"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("err = %v", err)
	}
}
