package testutils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a debug logger with a hook that keeps every entry, so
// tests can assert on what was logged as well as on behaviour.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   logtest.NewLocal(logger),
	}
}

// Logged reports whether an entry at level with the given message was logged.
func (h *TestHelper) Logged(level logrus.Level, msg string) bool {
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

var errNoModuleRoot = errors.New("module root not found (no go.mod above the working directory)")

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoModuleRoot
		}
		dir = parent
	}
}

// LoadFixture reads a file given relative to the module root.
func LoadFixture(relPath string) (string, error) {
	root, err := moduleRoot()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
