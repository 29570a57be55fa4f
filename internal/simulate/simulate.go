// Package simulate generates plausible human-in-the-loop event traffic for
// demos and for exercising a feed without a real producer.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/events"
)

// Ingester accepts raw events. ingest.Pipeline satisfies it.
type Ingester interface {
	Ingest(rawType string, payload any) (events.SystemEvent, bool)
}

// Step is one event of a generated lifecycle.
type Step struct {
	Type    events.EventType
	Payload map[string]any
}

var (
	agents    = []string{"planner", "coder", "reviewer", "deployer"}
	stages    = []string{"plan", "build", "review", "deploy"}
	reviewers = []string{"alice", "bob", "carol", "dmitri"}
	artifacts = []string{"design.md", "patch.diff", "release-notes.md", "migration.sql"}
	failures  = []string{"tests failed", "timeout waiting for tool", "policy violation"}
)

// Simulator emits lifecycles into an Ingester at a fixed interval.
type Simulator struct {
	target      Ingester
	interval    time.Duration
	rng         *rand.Rand
	failureRate float64
	errorRate   float64
	logger      *zerolog.Logger
	session     int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithInterval sets the delay between events.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSeed makes generation deterministic.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithFailureRate sets the probability that a run fails instead of completing.
func WithFailureRate(p float64) Option {
	return func(s *Simulator) {
		s.failureRate = clamp(p)
	}
}

// WithErrorRate sets the probability that a lifecycle ends with a producer error event.
func WithErrorRate(p float64) Option {
	return func(s *Simulator) {
		s.errorRate = clamp(p)
	}
}

// WithLogger sets the simulator's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a simulator writing into target.
func New(target Ingester, opts ...Option) *Simulator {
	nop := zerolog.Nop()
	s := &Simulator{
		target:      target,
		interval:    constants.DefaultSimulateInterval,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		failureRate: 0.2,
		errorRate:   0.1,
		logger:      &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifecycle returns the events of one agent session in emission order:
// session, run, artifact, approval gate, decision, then the run outcome.
func (s *Simulator) Lifecycle() []Step {
	s.session++
	sessionID := fmt.Sprintf("sess-%04d", s.session)
	runID := fmt.Sprintf("run-%04d", s.session)
	gateID := fmt.Sprintf("gate-%04d", s.session)
	agent := pick(s.rng, agents)
	artifact := pick(s.rng, artifacts)
	reviewer := pick(s.rng, reviewers)

	steps := []Step{
		{events.SessionStarted, map[string]any{"session_id": sessionID, "agent": agent}},
		{events.RunStarted, map[string]any{"run_id": runID, "session_id": sessionID}},
		{events.ArtifactCreated, map[string]any{"artifact_id": runID + "-a", "name": artifact, "run_id": runID}},
		{events.GateCreated, map[string]any{"gate_id": gateID, "stage": pick(s.rng, stages), "run_id": runID}},
	}

	if s.rng.Float64() < s.failureRate {
		steps = append(steps,
			Step{events.GateDecided, map[string]any{"gate_id": gateID, "decision": "rejected", "decided_by": reviewer}},
			Step{events.RunFailed, map[string]any{"run_id": runID, "error": pick(s.rng, failures)}},
		)
	} else {
		steps = append(steps,
			Step{events.GateDecided, map[string]any{"gate_id": gateID, "decision": "approved", "decided_by": reviewer}},
			Step{events.ArtifactApproved, map[string]any{"artifact_id": runID + "-a", "name": artifact}},
			Step{events.RunCompleted, map[string]any{
				"run_id":   runID,
				"duration": (time.Duration(5+s.rng.IntN(120)) * time.Second).String(),
			}},
		)
	}

	if s.rng.Float64() < s.errorRate {
		steps = append(steps, Step{events.Error, map[string]any{
			"message":    "agent " + agent + " lost tool connection",
			"session_id": sessionID,
		}})
	}

	return append(steps, Step{events.SessionCompleted, map[string]any{"session_id": sessionID}})
}

// Run emits lifecycles back to back until ctx is done. It returns ctx.Err().
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Simulator started")
	defer s.logger.Info().Msg("Simulator stopped")

	for {
		for _, step := range s.Lifecycle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			e, _ := s.target.Ingest(string(step.Type), step.Payload)
			s.logger.Debug().Str("event_id", e.ID).Str("event_type", string(e.Type)).Msg("Simulated event")
		}
	}
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
