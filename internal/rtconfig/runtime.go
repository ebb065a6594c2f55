// Package rtconfig loads and validates a resource's deploy-time
// configuration: runtime.toml (scheduler, control endpoint, retain,
// watchdog, fault, web/discovery/mesh) and io.toml (driver selection and
// safe-state values), plus the bundle directory layout that ties them to
// a compiled program.stbc.
package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/trust-automation/trust/internal/bytecode"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/retain"
)

// ControlMode selects whether the control endpoint runs with debug
// commands (pause/step/breakpoints) available or production-only.
type ControlMode uint8

const (
	ControlProduction ControlMode = iota
	ControlDebug
)

func (m ControlMode) String() string {
	switch m {
	case ControlProduction:
		return "production"
	case ControlDebug:
		return "debug"
	default:
		return "invalid"
	}
}

// ParseControlMode parses runtime.control.mode.
func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return ControlProduction, nil
	case "debug":
		return ControlDebug, nil
	default:
		return 0, fmt.Errorf("rtconfig: invalid runtime.control.mode %q", s)
	}
}

// WebAuthMode selects how the optional web UI authenticates.
type WebAuthMode uint8

const (
	WebAuthLocal WebAuthMode = iota
	WebAuthToken
)

func (m WebAuthMode) String() string {
	switch m {
	case WebAuthLocal:
		return "local"
	case WebAuthToken:
		return "token"
	default:
		return "invalid"
	}
}

// ParseWebAuthMode parses runtime.web.auth.
func ParseWebAuthMode(s string) (WebAuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return WebAuthLocal, nil
	case "token":
		return WebAuthToken, nil
	default:
		return 0, fmt.Errorf("rtconfig: invalid runtime.web.auth %q", s)
	}
}

// TaskOverride lets runtime.toml override a compiled program's TASK
// configuration at deploy time (interval, priority, program list) without
// recompiling the bundle.
type TaskOverride struct {
	Name     string
	Interval time.Duration
	Priority int
	Programs []string
	Single   string
}

// WebConfig configures the optional bundled web UI.
type WebConfig struct {
	Enabled bool
	Listen  string
	Auth    WebAuthMode
}

// DiscoveryConfig configures LAN service discovery advertisement.
type DiscoveryConfig struct {
	Enabled     bool
	ServiceName string
	Advertise   bool
	Interfaces  []string
}

// MeshConfig configures the optional peer-to-peer variable mesh.
type MeshConfig struct {
	Enabled   bool
	Listen    string
	AuthToken string
	Publish   []string
	Subscribe map[string]string
}

// RuntimeConfig is the fully validated, defaulted contents of runtime.toml.
type RuntimeConfig struct {
	BundleVersion      uint32
	ResourceName       string
	CycleInterval      time.Duration
	ControlEndpoint    string
	ControlAuthToken   string
	ControlDebugEnable bool
	ControlMode        ControlMode
	LogLevel           string
	RetainMode         retain.Mode
	RetainPath         string
	RetainSaveInterval time.Duration
	Watchdog           retain.WatchdogPolicy
	FaultPolicy        retain.FaultPolicy
	Web                WebConfig
	Discovery          DiscoveryConfig
	Mesh               MeshConfig
	Tasks              []TaskOverride
}

// --- raw TOML shape, mirroring the on-disk schema (§6.2) ---

type runtimeToml struct {
	Bundle   bundleSection   `toml:"bundle"`
	Resource resourceSection `toml:"resource"`
	Runtime  runtimeSection  `toml:"runtime"`
}

type bundleSection struct {
	Version uint32 `toml:"version"`
}

type resourceSection struct {
	Name            string        `toml:"name"`
	CycleIntervalMs uint64        `toml:"cycle_interval_ms"`
	Tasks           []taskSection `toml:"tasks"`
}

type taskSection struct {
	Name       string   `toml:"name"`
	IntervalMs uint64   `toml:"interval_ms"`
	Priority   uint8    `toml:"priority"`
	Programs   []string `toml:"programs"`
	Single     string   `toml:"single"`
}

type runtimeSection struct {
	Control   controlSection    `toml:"control"`
	Log       logSection        `toml:"log"`
	Retain    retainSection     `toml:"retain"`
	Watchdog  watchdogSection   `toml:"watchdog"`
	Fault     faultSection      `toml:"fault"`
	Web       *webSection       `toml:"web"`
	Discovery *discoverySection `toml:"discovery"`
	Mesh      *meshSection      `toml:"mesh"`
}

type controlSection struct {
	Endpoint     string `toml:"endpoint"`
	AuthToken    string `toml:"auth_token"`
	DebugEnabled *bool  `toml:"debug_enabled"`
	Mode         string `toml:"mode"`
}

type logSection struct {
	Level string `toml:"level"`
}

type retainSection struct {
	Mode           string `toml:"mode"`
	Path           string `toml:"path"`
	SaveIntervalMs uint64 `toml:"save_interval_ms"`
}

type watchdogSection struct {
	Enabled   bool   `toml:"enabled"`
	TimeoutMs uint64 `toml:"timeout_ms"`
	Action    string `toml:"action"`
}

type faultSection struct {
	Policy string `toml:"policy"`
}

type webSection struct {
	Enabled *bool  `toml:"enabled"`
	Listen  string `toml:"listen"`
	Auth    string `toml:"auth"`
}

type discoverySection struct {
	Enabled     *bool    `toml:"enabled"`
	ServiceName string   `toml:"service_name"`
	Advertise   *bool    `toml:"advertise"`
	Interfaces  []string `toml:"interfaces"`
}

type meshSection struct {
	Enabled   *bool             `toml:"enabled"`
	Listen    string            `toml:"listen"`
	AuthToken string            `toml:"auth_token"`
	Publish   []string          `toml:"publish"`
	Subscribe map[string]string `toml:"subscribe"`
}

// LoadRuntimeConfig reads and validates runtime.toml at path.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	var raw runtimeToml
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("rtconfig: runtime.toml: %w", err)
	}
	return raw.intoConfig()
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (raw runtimeToml) intoConfig() (*RuntimeConfig, error) {
	retainMode, err := retain.ParseMode(raw.Runtime.Retain.Mode)
	if err != nil {
		return nil, err
	}
	if retainMode == retain.ModeFile && raw.Runtime.Retain.Path == "" {
		return nil, fmt.Errorf("rtconfig: runtime.retain.path required when mode=file")
	}

	watchdogAction, err := retain.ParseWatchdogAction(raw.Runtime.Watchdog.Action)
	if err != nil {
		return nil, err
	}
	faultPolicy, err := retain.ParseFaultPolicy(raw.Runtime.Fault.Policy)
	if err != nil {
		return nil, err
	}

	controlModeStr := raw.Runtime.Control.Mode
	if controlModeStr == "" {
		controlModeStr = "production"
	}
	controlMode, err := ParseControlMode(controlModeStr)
	if err != nil {
		return nil, err
	}
	debugEnabled := controlMode == ControlDebug
	if raw.Runtime.Control.DebugEnabled != nil {
		debugEnabled = *raw.Runtime.Control.DebugEnabled
	}

	if strings.HasPrefix(raw.Runtime.Control.Endpoint, "tcp://") && raw.Runtime.Control.AuthToken == "" {
		return nil, fmt.Errorf("rtconfig: runtime.control.auth_token required for tcp endpoint")
	}

	web := raw.Runtime.Web
	if web == nil {
		web = &webSection{Listen: "0.0.0.0:8080", Auth: "local"}
	}
	webAuthStr := web.Auth
	if webAuthStr == "" {
		webAuthStr = "local"
	}
	webAuth, err := ParseWebAuthMode(webAuthStr)
	if err != nil {
		return nil, err
	}
	if webAuth == WebAuthToken && raw.Runtime.Control.AuthToken == "" {
		return nil, fmt.Errorf("rtconfig: runtime.web.auth=token requires runtime.control.auth_token")
	}
	webListen := web.Listen
	if webListen == "" {
		webListen = "0.0.0.0:8080"
	}

	disc := raw.Runtime.Discovery
	if disc == nil {
		disc = &discoverySection{ServiceName: "truST"}
	}
	discName := disc.ServiceName
	if discName == "" {
		discName = "truST"
	}

	mesh := raw.Runtime.Mesh
	if mesh == nil {
		mesh = &meshSection{Listen: "0.0.0.0:5200"}
	}
	meshListen := mesh.Listen
	if meshListen == "" {
		meshListen = "0.0.0.0:5200"
	}

	var tasks []TaskOverride
	for _, t := range raw.Resource.Tasks {
		tasks = append(tasks, TaskOverride{
			Name:     t.Name,
			Interval: time.Duration(t.IntervalMs) * time.Millisecond,
			Priority: int(t.Priority),
			Programs: t.Programs,
			Single:   t.Single,
		})
	}

	return &RuntimeConfig{
		BundleVersion:      raw.Bundle.Version,
		ResourceName:       raw.Resource.Name,
		CycleInterval:      time.Duration(raw.Resource.CycleIntervalMs) * time.Millisecond,
		ControlEndpoint:    raw.Runtime.Control.Endpoint,
		ControlAuthToken:   raw.Runtime.Control.AuthToken,
		ControlDebugEnable: debugEnabled,
		ControlMode:        controlMode,
		LogLevel:           raw.Runtime.Log.Level,
		RetainMode:         retainMode,
		RetainPath:         raw.Runtime.Retain.Path,
		RetainSaveInterval: time.Duration(raw.Runtime.Retain.SaveIntervalMs) * time.Millisecond,
		Watchdog: retain.WatchdogPolicy{
			Enabled: raw.Runtime.Watchdog.Enabled,
			Timeout: time.Duration(raw.Runtime.Watchdog.TimeoutMs) * time.Millisecond,
			Action:  watchdogAction,
		},
		FaultPolicy: faultPolicy,
		Web: WebConfig{
			Enabled: boolOr(web.Enabled, true),
			Listen:  webListen,
			Auth:    webAuth,
		},
		Discovery: DiscoveryConfig{
			Enabled:     boolOr(disc.Enabled, true),
			ServiceName: discName,
			Advertise:   boolOr(disc.Advertise, true),
			Interfaces:  disc.Interfaces,
		},
		Mesh: MeshConfig{
			Enabled:   boolOr(mesh.Enabled, false),
			Listen:    meshListen,
			AuthToken: strings.TrimSpace(mesh.AuthToken),
			Publish:   mesh.Publish,
			Subscribe: mesh.Subscribe,
		},
		Tasks: tasks,
	}, nil
}

// Bundle is a loaded project folder: runtime config, I/O config, and the
// decoded bytecode container (§6.2 program.stbc).
type Bundle struct {
	Root    string
	Runtime *RuntimeConfig
	Io      *IoConfig
	Program *bytecode.Module
}

// systemIoConfigPath mirrors the teacher's per-OS fallback location for a
// shared io.toml when a project folder doesn't carry its own.
func systemIoConfigPath() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\trust\io.toml`
	}
	return "/etc/trust/io.toml"
}

// LoadBundle loads runtime.toml, io.toml (or the system-wide fallback),
// and program.stbc from a project folder.
func LoadBundle(root string) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("rtconfig: project folder not found: %s", root)
	}

	runtimePath := filepath.Join(root, "runtime.toml")
	ioPath := filepath.Join(root, "io.toml")
	programPath := filepath.Join(root, "program.stbc")

	if _, err := os.Stat(runtimePath); err != nil {
		return nil, fmt.Errorf("rtconfig: missing runtime.toml at %s", runtimePath)
	}
	if _, err := os.Stat(programPath); err != nil {
		return nil, fmt.Errorf("rtconfig: missing program.stbc at %s", programPath)
	}

	rc, err := LoadRuntimeConfig(runtimePath)
	if err != nil {
		return nil, err
	}

	var ioc *IoConfig
	if _, err := os.Stat(ioPath); err == nil {
		ioc, err = LoadIoConfig(ioPath)
		if err != nil {
			return nil, err
		}
	} else if sysPath := systemIoConfigPath(); fileExists(sysPath) {
		ioc, err = LoadIoConfig(sysPath)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("rtconfig: missing io.toml at %s and no system io config at %s", ioPath, sysPath)
	}

	raw, err := os.ReadFile(programPath)
	if err != nil {
		return nil, fmt.Errorf("rtconfig: reading program.stbc: %w", err)
	}
	prog, err := bytecode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("rtconfig: decoding program.stbc: %w", err)
	}

	return &Bundle{Root: root, Runtime: rc, Io: ioc, Program: prog}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ApplyTaskOverrides rewrites res.Tasks in place with any matching
// runtime.toml task override (§6.2 resource.tasks): a named override
// replaces the compiled TASK's interval, priority and single trigger, and
// its program list when the override gives one, letting a bundle's deploy-time config retune
// scheduling without recompiling program.stbc. Overrides naming a task
// absent from the compiled resource are ignored — runtime.toml tunes an
// existing TASK, it does not declare new ones.
func ApplyTaskOverrides(res *ir.ResourceDef, overrides []TaskOverride) {
	byName := make(map[string]TaskOverride, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}
	for i := range res.Tasks {
		o, ok := byName[res.Tasks[i].Name]
		if !ok {
			continue
		}
		res.Tasks[i].Interval = o.Interval
		res.Tasks[i].Priority = o.Priority
		if o.Programs != nil {
			res.Tasks[i].Programs = o.Programs
		}
		res.Tasks[i].Single = o.Single
	}
}
