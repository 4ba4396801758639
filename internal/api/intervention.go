package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/mini-economy/internal/agents"
	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/engine"
)

const maxInterventionBytes = 64 << 10

// interventionSchema constrains POST /api/v1/intervention bodies.
const interventionSchema = `{
	"type": "object",
	"required": ["kind"],
	"additionalProperties": false,
	"properties": {
		"kind":      {"enum": ["note", "deposit", "provision", "withdraw_offers", "deconstruct"]},
		"message":   {"type": "string", "minLength": 1, "maxLength": 500},
		"agent":     {"type": "string", "minLength": 1},
		"commodity": {"type": "string", "pattern": "^(good|currency|property):.+$"},
		"amount":    {"type": "number", "exclusiveMinimum": 0},
		"role":      {"enum": ["firm", "household", "dealer"]},
		"good":      {"type": "string", "minLength": 1},
		"count":     {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"allOf": [
		{"if": {"properties": {"kind": {"const": "note"}}}, "then": {"required": ["message"]}},
		{"if": {"properties": {"kind": {"const": "deposit"}}}, "then": {"required": ["agent", "commodity", "amount"]}},
		{"if": {"properties": {"kind": {"const": "provision"}}}, "then": {"required": ["role", "good"]}},
		{"if": {"properties": {"kind": {"enum": ["withdraw_offers", "deconstruct"]}}}, "then": {"required": ["agent"]}}
	]
}`

// interventionRequest is an external event submitted over HTTP.
type interventionRequest struct {
	Kind      string  `json:"kind"`
	Message   string  `json:"message,omitempty"`
	Agent     string  `json:"agent,omitempty"`
	Commodity string  `json:"commodity,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Role      string  `json:"role,omitempty"`
	Good      string  `json:"good,omitempty"`
	Count     int     `json:"count,omitempty"`
}

// ValidationError is a request body rejected by the intervention schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

type interventionValidator struct {
	schema *jsonschema.Schema
}

func newInterventionValidator() (*interventionValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("intervention.json", strings.NewReader(interventionSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("intervention.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &interventionValidator{schema: schema}, nil
}

// decode validates body against the schema and decodes it.
func (v *interventionValidator) decode(body []byte) (*interventionRequest, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if t, _ := dec.Token(); t != nil {
		return nil, fmt.Errorf("invalid json: invalid character %v after top-level value", t)
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := ve
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			return nil, &ValidationError{Field: leaf.InstanceLocation, Message: leaf.Message}
		}
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	var req interventionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return &req, nil
}

// handleIntervention queues an external event. It runs at the start of the
// next simulated day, inside the tick, so it may touch any simulation state.
func (s *Server) handleIntervention(v *interventionValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxInterventionBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		req, err := v.decode(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		h, status, err := s.interventionHandler(req)
		if err != nil {
			http.Error(w, err.Error(), status)
			return
		}

		var pos int
		var now clock.Instant
		s.Eng.View(func(sim *engine.Simulation) {
			now = sim.Now()
			pos = sim.Submit(engine.ExternalEvent{
				Name:    "intervention:" + req.Kind,
				Kind:    req.Kind,
				Handler: h,
			})
		})
		s.Logger.Info("intervention queued", "kind", req.Kind, "position", pos, "instant", now.String())

		writeJSONStatus(w, http.StatusAccepted, map[string]any{
			"queued":   true,
			"kind":     req.Kind,
			"position": pos,
			"runs_at":  nextDayStart(now).String(),
		})
	}
}

// interventionHandler resolves a request to the handler the dispatcher will
// run, checking what can be checked up front.
func (s *Server) interventionHandler(req *interventionRequest) (engine.Handler, int, error) {
	switch req.Kind {
	case "note":
		logger := s.Logger
		msg := req.Message
		return func(now clock.Instant) error {
			logger.Info("intervention note", "instant", now.String(), "message", msg)
			return nil
		}, 0, nil

	case "deposit":
		c, err := economy.ParseCommodity(req.Commodity)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if s.Bank == nil {
			return nil, http.StatusServiceUnavailable, errors.New("no bank")
		}
		id := economy.AgentID(req.Agent)
		if err := s.requireAgent(id); err != nil {
			return nil, http.StatusNotFound, err
		}
		amount := req.Amount
		return func(clock.Instant) error {
			if a, ok := s.Pop.Get(id); !ok || !a.Alive {
				return fmt.Errorf("deposit to %s: %w", id, agents.ErrUnknownAgent)
			}
			return s.Bank.Deposit(id, c, amount)
		}, 0, nil

	case "provision":
		if s.Pop == nil {
			return nil, http.StatusServiceUnavailable, errors.New("no population")
		}
		g, ok := economy.GoodTypeFromString(req.Good)
		if !ok {
			return nil, http.StatusBadRequest, fmt.Errorf("unknown good %q", req.Good)
		}
		count := max(req.Count, 1)
		role, cur := req.Role, s.Currency
		if cur == "" {
			cur = economy.EUR
		}
		return func(clock.Instant) error {
			for range count {
				var err error
				switch role {
				case "firm":
					_, err = s.Pop.AddFirm(g, cur, 10, 0.1)
				case "household":
					_, err = s.Pop.AddHousehold(g, cur, 2, g.BasePrice()*60, 500)
				case "dealer":
					fx := economy.USD
					if cur == economy.USD {
						fx = economy.EUR
					}
					_, err = s.Pop.AddDealer(g, cur, fx, 500)
				}
				if err != nil {
					return err
				}
			}
			return nil
		}, 0, nil

	case "withdraw_offers":
		id := economy.AgentID(req.Agent)
		if err := s.requireAgent(id); err != nil {
			return nil, http.StatusNotFound, err
		}
		logger := s.Logger
		return func(now clock.Instant) error {
			n := s.Eng.Sim.Markets.RemoveAll(id, economy.Filter{})
			logger.Info("offers withdrawn", "agent", id, "orders", n, "instant", now.String())
			return nil
		}, 0, nil

	case "deconstruct":
		id := economy.AgentID(req.Agent)
		if err := s.requireAgent(id); err != nil {
			return nil, http.StatusNotFound, err
		}
		return func(clock.Instant) error {
			_, err := s.Pop.Deconstruct(id)
			return err
		}, 0, nil
	}
	return nil, http.StatusBadRequest, fmt.Errorf("unknown kind %q", req.Kind)
}

func (s *Server) requireAgent(id economy.AgentID) error {
	if s.Pop == nil {
		return fmt.Errorf("agent %s: %w", id, agents.ErrUnknownAgent)
	}
	var ok bool
	s.Eng.View(func(*engine.Simulation) {
		var a *agents.Agent
		a, ok = s.Pop.Get(id)
		ok = ok && a.Alive
	})
	if !ok {
		return fmt.Errorf("agent %s: %w", id, agents.ErrUnknownAgent)
	}
	return nil
}

// nextDayStart returns the next instant at which external events run.
func nextDayStart(now clock.Instant) clock.Instant {
	t := now.Time()
	day := clock.InstantOf(t.AddDate(0, 0, 1))
	day.Hour = 0
	return day
}
