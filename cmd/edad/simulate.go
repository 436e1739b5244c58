package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	edad "github.com/srg/edad"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/peripheral"
)

// errInjected is what a "fail" step makes the next notification return.
var errInjected = errors.New("injected link failure")

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a peer scenario against the EDA service without a radio",
	Long: `Run the EDA service on an in-memory GATT stack and play a scenario of
peer actions against it. Every step and every notification a peer receives
is printed, followed by the publishing counters.

A scenario is a YAML file with a list of steps, each holding one action:

  connect: <peer>       open a link
  subscribe: <peer>     enable notifications of the EDA level
  unsubscribe: <peer>   disable them again
  disconnect: <peer>    drop the link
  fail: <peer>          make the next notification to the peer fail
  level: <0-255>        publish a level to every connected peer
  wait: <duration>      pause

Without --scenario the built-in reconnect scenario is played. With --json a
single JSON report is written instead of the transcript.`,
	Example: `  edad simulate
  edad simulate --scenario examples/scenarios/reconnect.yaml --color never
  edad simulate --json`,
	RunE: runSimulate,
}

var (
	simulateScenario string
	simulateColor    string
	simulateJSON     bool
)

func init() {
	simulateCmd.Flags().StringVarP(&simulateScenario, "scenario", "s", "", "Scenario file to play (default: built-in reconnect scenario)")
	simulateCmd.Flags().StringVar(&simulateColor, "color", ColorAuto, "Colorize output: auto, always, or never")
	simulateCmd.Flags().BoolVar(&simulateJSON, "json", false, "Write a JSON report instead of the transcript")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}
	var rec recorder
	if simulateJSON {
		rec = newJSONReport(cmd.OutOrStdout())
	} else if rec, err = newTranscript(cmd.OutOrStdout(), simulateColor); err != nil {
		return err
	}

	var sc *Scenario
	if simulateScenario != "" {
		sc, err = LoadScenario(simulateScenario)
	} else {
		sc, err = ParseScenario([]byte(edad.DefaultScenario))
	}
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	disp := peripheral.NewDispatcher(logger, 0)
	host := peripheral.NewSimHost(disp, logger)
	host.OnDelivery = rec.delivery
	st, err := buildStack(cfg, disp, host, logger)
	if err != nil {
		return err
	}
	disp.Start(ctx)
	defer func() {
		cancel()
		<-disp.Done()
	}()

	sim := &simulation{host: host, st: st, rec: rec, logger: logger, peers: make(map[string]gatt.ConnHandle)}
	rec.header(sc.Name)
	if err := sim.play(ctx, sc); err != nil {
		return err
	}
	return rec.finish(st.pub.Stats(), len(host.Deliveries()))
}

// simulation plays scenario steps against a SimHost.
type simulation struct {
	host   *peripheral.SimHost
	st     *stack
	rec    recorder
	logger *logrus.Logger
	peers  map[string]gatt.ConnHandle
}

func (s *simulation) play(ctx context.Context, sc *Scenario) error {
	for i, step := range sc.Steps {
		if err := s.apply(ctx, i+1, step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *simulation) apply(ctx context.Context, n int, step Step) error {
	action, peer := step.Action()
	s.logger.WithFields(logrus.Fields{"step": n, "action": action, "peer": peer}).Debug("Playing scenario step")

	switch action {
	case "connect":
		if _, ok := s.peers[peer]; ok {
			return fmt.Errorf("%w: %s is already connected", ErrScenario, peer)
		}
		conn, err := s.host.Connect(ctx, peer)
		if err != nil {
			return err
		}
		s.peers[peer] = conn
		s.rec.step(stepInfo{N: n, Action: action, Peer: peer, Conn: conn})
		return nil

	case "level":
		level := eda.Level(*step.Level)
		s.rec.step(stepInfo{N: n, Action: action, Arg: fmt.Sprint(level)})
		// A failed update is part of the story being played, not a reason to stop.
		if err := s.st.pub.Publish(ctx, level); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.rec.failure(err)
		}
		return nil

	case "wait":
		s.rec.step(stepInfo{N: n, Action: action, Arg: step.Wait.String()})
		timer := time.NewTimer(step.Wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	conn, ok := s.peers[peer]
	if !ok {
		return fmt.Errorf("%w: %s is not connected", ErrScenario, peer)
	}
	s.rec.step(stepInfo{N: n, Action: action, Peer: peer, Conn: conn})

	switch action {
	case "subscribe", "unsubscribe":
		return s.host.Subscribe(ctx, conn, s.st.svc.LevelHandles().Value, action == "subscribe")
	case "disconnect":
		delete(s.peers, peer)
		return s.host.Disconnect(ctx, conn)
	case "fail":
		s.host.FailNext(conn, errInjected)
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", ErrScenario, action)
}
