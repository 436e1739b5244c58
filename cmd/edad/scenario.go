package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of peer actions and level updates.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action. Peers are named; the connection handle a
// name maps to is assigned when it connects.
type Step struct {
	Connect     string        `yaml:"connect,omitempty"`
	Subscribe   string        `yaml:"subscribe,omitempty"`
	Unsubscribe string        `yaml:"unsubscribe,omitempty"`
	Disconnect  string        `yaml:"disconnect,omitempty"`
	Fail        string        `yaml:"fail,omitempty"`
	Level       *uint8        `yaml:"level,omitempty"`
	Wait        time.Duration `yaml:"wait,omitempty"`
}

// Action names the single action a step performs and the peer it targets.
func (s Step) Action() (action string, peer string) {
	switch {
	case s.Connect != "":
		return "connect", s.Connect
	case s.Subscribe != "":
		return "subscribe", s.Subscribe
	case s.Unsubscribe != "":
		return "unsubscribe", s.Unsubscribe
	case s.Disconnect != "":
		return "disconnect", s.Disconnect
	case s.Fail != "":
		return "fail", s.Fail
	case s.Level != nil:
		return "level", ""
	case s.Wait > 0:
		return "wait", ""
	}
	return "", ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Connect != "",
		s.Subscribe != "",
		s.Unsubscribe != "",
		s.Disconnect != "",
		s.Fail != "",
		s.Level != nil,
		s.Wait > 0,
	} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	defer f.Close()
	return DecodeScenario(f)
}

// ParseScenario decodes an embedded or in-memory scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	return DecodeScenario(bytes.NewReader(data))
}

// DecodeScenario decodes and validates a scenario. Unknown keys are rejected.
func DecodeScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty scenario", ErrScenario)
		}
		return nil, fmt.Errorf("%w: %v", ErrScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every step performs exactly one action.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrScenario)
	}
	for i, step := range sc.Steps {
		switch step.actions() {
		case 0:
			return fmt.Errorf("%w: step %d has no action", ErrScenario, i+1)
		case 1:
		default:
			return fmt.Errorf("%w: step %d has more than one action", ErrScenario, i+1)
		}
	}
	return nil
}
