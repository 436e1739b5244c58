package edad

import _ "embed"

// DefaultScenario is the scenario `edad simulate` plays when none is given.
// It walks through subscription, an update while a bonded peer is away and
// the replay on its return.
//
//go:embed examples/scenarios/reconnect.yaml
var DefaultScenario string

// ExampleConfig is a commented configuration file covering every option.
//
//go:embed examples/edad.yaml
var ExampleConfig string
