// Package source starts the event sources that feed a command's pipeline:
// an upstream WebSocket feed, the simulator, or both.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/simulate"
	"github.com/agentstation/hitlfeed/internal/transport"
	"github.com/agentstation/hitlfeed/pkg/constants"
)

// Options selects and configures the sources.
type Options struct {
	URL         string
	AuthScheme  string
	APIKey      string
	MaxAttempts uint64

	Simulate bool
	Interval time.Duration
	Seed     uint64
}

// Empty reports whether no source is configured.
func (o Options) Empty() bool {
	return o.URL == "" && !o.Simulate
}

// Running is a set of started sources.
type Running struct {
	pipeline  *ingest.Pipeline
	client    *transport.Client
	detach    func()
	simulated bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start attaches the configured sources to p. Sources stop when ctx is
// cancelled or Stop is called.
func Start(ctx context.Context, p *ingest.Pipeline, opts Options, logger *zerolog.Logger) (*Running, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Running{pipeline: p, cancel: cancel, detach: func() {}}

	if opts.URL != "" {
		r.client = transport.New(opts.URL,
			transport.WithLogger(logger),
			transport.WithAuth(transport.ParseAuth(opts.AuthScheme), opts.APIKey),
			transport.WithMaxAttempts(opts.MaxAttempts),
		)
		r.detach = p.Attach(r.client)
		if err := r.client.Connect(ctx); err != nil {
			r.Stop()
			return nil, err
		}
		logger.Info().Str("url", opts.URL).Msg("Connecting to upstream feed")
	}

	if opts.Simulate {
		interval := opts.Interval
		if interval <= 0 {
			interval = constants.DefaultSimulateInterval
		}
		simOpts := []simulate.Option{simulate.WithInterval(interval), simulate.WithLogger(logger)}
		if opts.Seed != 0 {
			simOpts = append(simOpts, simulate.WithSeed(opts.Seed))
		}
		sim := simulate.New(p, simOpts...)

		if r.client == nil {
			// the simulator stands in for a live connection
			r.simulated = true
			p.Store().SetConnected(true)
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_ = sim.Run(ctx)
		}()
	}

	return r, nil
}

// Client returns the upstream client, or nil when no URL was configured.
func (r *Running) Client() *transport.Client {
	return r.client
}

// Stop detaches and stops every source and waits for them to exit. It is
// safe to call more than once.
func (r *Running) Stop() {
	r.stopOnce.Do(func() {
		// disconnect while attached so the store sees the final state
		if r.client != nil {
			r.client.Disconnect()
		}
		r.detach()
		r.cancel()
		r.wg.Wait()
		if r.simulated {
			r.pipeline.Store().SetConnected(false)
		}
	})
}
