package retain

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// Manager owns the persistence side of one resource's retain area: loading
// a snapshot at startup (mode=file), and periodically writing one back
// (mode=file) at the configured save interval. mode=memory/none need no
// file I/O — the VariableStorage instance itself is the only thing that
// carries retain values across a warm restart, and a cold restart always
// calls storage.VariableStorage.ResetRetainCold regardless of mode.
type Manager struct {
	Storage      *storage.VariableStorage
	Reg          *types.Registry
	Mode         Mode
	Path         string
	SaveInterval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewManager validates mode/path combination (§6.2: "retain.mode=file
// requires retain.path") and returns a ready Manager.
func NewManager(s *storage.VariableStorage, reg *types.Registry, mode Mode, path string, saveInterval time.Duration) (*Manager, error) {
	if mode == ModeFile && path == "" {
		return nil, fmt.Errorf("retain: mode=file requires a path")
	}
	return &Manager{Storage: s, Reg: reg, Mode: mode, Path: path, SaveInterval: saveInterval}, nil
}

// Load restores a persisted snapshot into Storage.Retain (mode=file only);
// a missing file is a cold start, not an error. Returns any per-variable
// schema-mismatch warnings the snapshot decode surfaced.
func (m *Manager) Load() ([]string, error) {
	if m.Mode != ModeFile {
		return nil, nil
	}
	data, err := os.ReadFile(m.Path)
	if os.IsNotExist(err) {
		T().P("retain-path", m.Path).Infof("no retain snapshot found, starting cold")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retain: reading %s: %w", m.Path, err)
	}
	vars, warnings, err := DecodeSnapshot(data, m.Reg)
	if err != nil {
		return nil, fmt.Errorf("retain: decoding %s: %w", m.Path, err)
	}
	m.Storage.Retain = vars
	for _, w := range warnings {
		T().P("retain-path", m.Path).Infof("%s", w)
	}
	return warnings, nil
}

// SnapshotNow writes the current retain area to Path immediately (mode=file
// only). The retain area is cloned under lock before encoding, so a
// concurrent mutation during a slow encode/write never produces a
// half-written struct (§5 retain persistence ordering).
func (m *Manager) SnapshotNow() error {
	if m.Mode != ModeFile {
		return nil
	}
	m.mu.Lock()
	clone := m.Storage.CloneRetain()
	m.mu.Unlock()

	data, err := EncodeSnapshot(clone, m.Reg)
	if err != nil {
		return fmt.Errorf("retain: encoding snapshot: %w", err)
	}
	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("retain: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		return fmt.Errorf("retain: renaming %s to %s: %w", tmp, m.Path, err)
	}
	return nil
}

// Start launches the periodic snapshot goroutine (mode=file with a
// positive SaveInterval only); a no-op otherwise. Stop must be called to
// release the goroutine.
func (m *Manager) Start() {
	if m.Mode != ModeFile || m.SaveInterval <= 0 {
		return
	}
	m.stopCh = make(chan struct{})
	m.stopped = make(chan struct{})
	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(m.SaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.SnapshotNow(); err != nil {
					T().P("retain-path", m.Path).Errorf("snapshot failed: %v", err)
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the periodic snapshot goroutine, if running, and blocks until
// it has exited.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.stopped
	m.stopCh = nil
}

// ResetCold clears the retain area for a cold restart regardless of mode
// (invariant (ii), §3.3) and, for mode=file, removes the on-disk snapshot
// so a subsequent crash-restart does not resurrect stale values.
func (m *Manager) ResetCold() error {
	m.Storage.ResetRetainCold()
	if m.Mode != ModeFile {
		return nil
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("retain: removing %s: %w", m.Path, err)
	}
	return nil
}
