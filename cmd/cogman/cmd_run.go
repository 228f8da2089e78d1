package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cogman/internal/config"
	"cogman/internal/eps"
	"cogman/internal/gate"
	"cogman/internal/logging"
	"cogman/internal/runtime"
	"cogman/internal/store"
	"cogman/internal/wm"
)

// runCmd starts the phase loop, reading pre-projected energetic states as
// JSON lines from stdin. Perception proper lives outside this core, so the
// runner accepts its output directly.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop, reading EPS states as JSON lines from stdin",
	Example: `  echo '{"I":1.2,"P":0.4,"S":0.9,"H":0.3,"A":0.5,"S_a":0.6,"E_mu":45,"theta":0.1}' | cogman run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runLoop(cmd.Context(), cfg)
	},
}

func runLoop(parent context.Context, cfg *config.Config) error {
	log := logging.Get(logging.CategoryBoot)

	policy, err := cfg.Gate.ResolvePolicy()
	if err != nil {
		return err
	}
	g, err := gate.New(policy)
	if err != nil {
		return err
	}
	log.Infow("gate policy active", "profile", policy.Name, "fail_closed", policy.FailClosed)

	traceStore, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer traceStore.Close()

	router := wm.NewController(cfg.WMRouterConfig(), g, nil, nil)
	worker := runtime.NewWorker(nil, nil, cfg.PostProcessing.BufferSize)
	worker.Start()
	defer worker.Stop()

	idlePoll, err := cfg.IdlePoll()
	if err != nil {
		return err
	}
	loop, err := runtime.NewLoop(runtime.LoopConfig{
		QueueSize:    cfg.Runtime.QueueSize,
		IdlePoll:     idlePoll,
		HistoryDepth: cfg.Runtime.HistoryDepth,
		RuntimeMode:  cfg.Runtime.Mode,
	}, runtime.Deps{
		Adapter:     runtime.NewAdapter(g, nil),
		Perception:  statePassthrough{},
		Router:      router,
		Post:        worker,
		Containment: runtime.NewContainment(0),
		Persister:   traceStore,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Gate.WatchProfiles && cfg.Gate.ProfilesPath != "" {
		watcher, err := config.NewPolicyWatcher(cfg.Gate.ProfilesPath, cfg.Gate.ActiveProfile, g)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		loop.Run(ctx)
		return nil
	})

	eg.Go(func() error {
		defer loop.Stop()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := loop.Enqueue(line, "stdin"); err != nil {
				logging.Get(logging.CategoryRuntime).Warnw("input dropped", "error", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return scanner.Err()
	})

	return eg.Wait()
}

// statePassthrough treats the incoming signal as an already-projected
// energetic state: either an eps.State value or its JSON encoding.
type statePassthrough struct{}

func (statePassthrough) ProjectEnergy(origin runtime.OriginPack) (eps.State, error) {
	switch v := origin.Signal.(type) {
	case eps.State:
		return v, v.Validate()
	case string:
		var s eps.State
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return eps.State{}, fmt.Errorf("decode state: %w", err)
		}
		return s, s.Validate()
	case []byte:
		var s eps.State
		if err := json.Unmarshal(v, &s); err != nil {
			return eps.State{}, fmt.Errorf("decode state: %w", err)
		}
		return s, s.Validate()
	default:
		return eps.State{}, fmt.Errorf("unsupported signal type %T", origin.Signal)
	}
}
