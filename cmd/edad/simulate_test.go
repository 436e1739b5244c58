package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srg/edad/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const reconnectTranscript = `
Scenario: reconnect replay
[01] connect     phone (conn 0x0000)
[02] connect     watch (conn 0x0001)
[03] subscribe   phone (conn 0x0000)
[04] subscribe   watch (conn 0x0001)
[05] level       40
     notify -> phone (conn 0x0000) level=40
     notify -> watch (conn 0x0001) level=40
[06] level       40
[07] level       55
     notify -> phone (conn 0x0000) level=55
     notify -> watch (conn 0x0001) level=55
[08] disconnect  phone (conn 0x0000)
[09] level       72
     notify -> watch (conn 0x0001) level=72
[10] connect     phone (conn 0x0002)
[11] subscribe   phone (conn 0x0002)
     notify -> phone (conn 0x0002) level=72
[12] fail        watch (conn 0x0001)
[13] level       64
     notify -> phone (conn 0x0002) level=64
     error: eda notify: transport_failed: injected link failure
[14] unsubscribe watch (conn 0x0001)
[15] level       60
     notify -> phone (conn 0x0002) level=60
     error: eda notify: transport_failed: peer has not enabled notifications: 0x0001
[16] disconnect  watch (conn 0x0001)
[17] disconnect  phone (conn 0x0002)
published=4 failed=2 replayed=1 deliveries=8
`

// CommandSuite runs edad subcommands through the root command.
type CommandSuite struct {
	suite.Suite
}

func (s *CommandSuite) SetupTest() {
	// Flag values persist across Execute calls on the shared command tree
	simulateScenario = ""
	simulateColor = ColorAuto
	simulateJSON = false
	configExample = false
	serveName = ""
	for _, name := range []string{"config", "log-level"} {
		s.Require().NoError(rootCmd.PersistentFlags().Set(name, ""))
	}
	s.Require().NoError(rootCmd.PersistentFlags().Set("verbose", "false"))
}

// Execute runs args against rootCmd and returns stdout, stderr and the error.
func (s *CommandSuite) Execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	_, err := rootCmd.ExecuteC()
	return stdout.String(), stderr.String(), err
}

func (s *CommandSuite) writeFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *CommandSuite) TestSimulate_DefaultScenario() {
	// GOAL: The built-in scenario shows fan-out, dedup, replay to a returning
	// peer and per-peer failures without stopping the run
	out, _, err := s.Execute("simulate", "--color", "never", "--log-level", "error")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, reconnectTranscript)
}

func (s *CommandSuite) TestSimulate_ColorAlways() {
	out, _, err := s.Execute("simulate", "--color", "always", "--log-level", "error")

	s.Require().NoError(err)
	s.Contains(out, "\x1b[", "forced color must emit escapes")
	testutils.NewTextAsserter(s.T()).Assert(out, reconnectTranscript)
}

func (s *CommandSuite) TestSimulate_InvalidColor() {
	_, _, err := s.Execute("simulate", "--color", "sometimes")

	s.Require().Error(err)
	s.Contains(err.Error(), "invalid color mode")
}

func (s *CommandSuite) TestSimulate_JSONReport() {
	out, _, err := s.Execute("simulate", "--json", "--log-level", "error")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"scenario": "reconnect replay",
		"steps": [
			{"step": 1, "action": "connect", "peer": "phone", "conn": "0x0000", "deliveries": []},
			{"step": 2, "action": "connect", "peer": "watch", "conn": "0x0001", "deliveries": []},
			{"step": 3, "action": "subscribe", "peer": "phone", "deliveries": []},
			{"step": 4, "action": "subscribe", "peer": "watch", "deliveries": []},
			{"step": 5, "action": "level", "arg": "40", "deliveries": [
				{"peer": "phone", "level": 40},
				{"peer": "watch", "level": 40}
			]},
			{"step": 6, "action": "level", "arg": "40", "deliveries": []},
			{"step": 7, "action": "level", "arg": "55", "deliveries": [
				{"peer": "phone", "level": 55},
				{"peer": "watch", "level": 55}
			]},
			{"step": 8, "action": "disconnect", "peer": "phone", "deliveries": []},
			{"step": 9, "action": "level", "arg": "72", "deliveries": [{"peer": "watch", "level": 72}]},
			{"step": 10, "action": "connect", "peer": "phone", "conn": "0x0002", "deliveries": []},
			{"step": 11, "action": "subscribe", "peer": "phone", "deliveries": [{"peer": "phone", "conn": "0x0002", "level": 72}]},
			{"step": 12, "action": "fail", "peer": "watch", "deliveries": []},
			{"step": 13, "action": "level", "arg": "64", "deliveries": [{"peer": "phone", "level": 64}], "error": "<<PRESENCE>>"},
			{"step": 14, "action": "unsubscribe", "peer": "watch", "deliveries": []},
			{"step": 15, "action": "level", "arg": "60", "deliveries": [{"peer": "phone", "level": 60}], "error": "<<PRESENCE>>"},
			{"step": 16, "action": "disconnect", "peer": "watch", "deliveries": []},
			{"step": 17, "action": "disconnect", "peer": "phone", "deliveries": []}
		],
		"stats": {"published": 4, "failed": 2, "replayed": 1, "deliveries": 8}
	}`)
}

func (s *CommandSuite) TestSimulate_ReplayDisabledByConfig() {
	cfg := s.writeFile("edad.yaml", "replay_on_reconnect: false\n")

	out, _, err := s.Execute("simulate", "--config", cfg, "--color", "never", "--log-level", "error")

	s.Require().NoError(err)
	s.Contains(out, "[11] subscribe   phone (conn 0x0002)\n[12] fail")
	s.Contains(out, "replayed=0 deliveries=7")
}

func (s *CommandSuite) TestSimulate_ScenarioFile() {
	path := s.writeFile("short.yaml", `
name: short
steps:
  - connect: a
  - subscribe: a
  - level: 7
  - wait: 1ms
`)

	out, _, err := s.Execute("simulate", "--scenario", path, "--color", "never", "--log-level", "error")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
Scenario: short
[01] connect     a (conn 0x0000)
[02] subscribe   a (conn 0x0000)
[03] level       7
     notify -> a (conn 0x0000) level=7
[04] wait        1ms
published=1 failed=0 replayed=0 deliveries=1
`)
}

func (s *CommandSuite) TestSimulate_ScenarioErrors() {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown peer",
			content: "steps:\n  - subscribe: ghost\n",
			errMsg:  "step 1: invalid scenario: ghost is not connected",
		},
		{
			name:    "double connect",
			content: "steps:\n  - connect: a\n  - connect: a\n",
			errMsg:  "step 2: invalid scenario: a is already connected",
		},
		{
			name:    "two actions in a step",
			content: "steps:\n  - connect: a\n    level: 3\n",
			errMsg:  "step 1 has more than one action",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			path := s.writeFile("bad.yaml", tt.content)

			_, _, err := s.Execute("simulate", "--scenario", path, "--color", "never", "--log-level", "error")

			s.Require().Error(err)
			s.ErrorIs(err, ErrScenario)
			s.Contains(err.Error(), tt.errMsg)
		})
	}
}

func (s *CommandSuite) TestSimulate_LogsGoToStderr() {
	out, errOut, err := s.Execute("simulate", "--color", "never", "--verbose")

	s.Require().NoError(err)
	s.NotContains(out, "level=debug")
	s.True(strings.Contains(errOut, "Playing scenario step"), "debug logs expected on stderr")
}

func (s *CommandSuite) TestConfig_Defaults() {
	out, _, err := s.Execute("config")

	s.Require().NoError(err)
	s.Contains(out, "device_name: EDA")
	s.Contains(out, "replay_on_reconnect: true")
	s.Contains(out, "kind: simulated")
}

func (s *CommandSuite) TestConfig_FileOverrides() {
	cfg := s.writeFile("edad.yaml", "device_name: Wrist\nservice:\n  initial_level: 12\n")

	out, _, err := s.Execute("config", "--config", cfg)

	s.Require().NoError(err)
	s.Contains(out, "device_name: Wrist")
	s.Contains(out, "initial_level: 12")
}

func (s *CommandSuite) TestConfig_Example() {
	out, _, err := s.Execute("config", "--example")

	s.Require().NoError(err)
	s.Contains(out, "replay_on_reconnect")
}

func (s *CommandSuite) TestConfig_MissingFile() {
	_, _, err := s.Execute("config", "--config", filepath.Join(s.T().TempDir(), "missing.yaml"))

	s.Require().Error(err)
	s.ErrorIs(err, os.ErrNotExist)
	s.Contains(FormatUserError(err), "check the --config")
}

func (s *CommandSuite) TestInvalidLogLevel() {
	_, _, err := s.Execute("simulate", "--log-level", "loud")

	s.Require().Error(err)
	s.Contains(err.Error(), "invalid log level: loud")
}

func TestCommandSuite(t *testing.T) {
	suite.Run(t, new(CommandSuite))
}
