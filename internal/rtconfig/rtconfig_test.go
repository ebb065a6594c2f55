package rtconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/retain"
)

const sampleRuntimeToml = `
[bundle]
version = 1

[resource]
name = "MainResource"
cycle_interval_ms = 10

[[resource.tasks]]
name = "Fast"
interval_ms = 10
priority = 1
programs = ["Main"]

[runtime.control]
endpoint = "unix:///tmp/trust.sock"
mode = "production"

[runtime.log]
level = "info"

[runtime.retain]
mode = "none"
save_interval_ms = 0

[runtime.watchdog]
enabled = true
timeout_ms = 50
action = "safe_stop"

[runtime.fault]
policy = "safe_state"
`

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")
	if err := os.WriteFile(path, []byte(sampleRuntimeToml), 0o644); err != nil {
		t.Fatal(err)
	}
	rc, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if rc.ResourceName != "MainResource" {
		t.Fatalf("unexpected resource name %q", rc.ResourceName)
	}
	if rc.RetainMode != retain.ModeNone {
		t.Fatalf("expected retain mode none, got %v", rc.RetainMode)
	}
	if rc.Watchdog.Action != retain.ActionSafeStop {
		t.Fatalf("expected watchdog action safe_stop, got %v", rc.Watchdog.Action)
	}
	if rc.FaultPolicy != retain.FaultSafeState {
		t.Fatalf("expected fault policy safe_state, got %v", rc.FaultPolicy)
	}
	if rc.Web.Listen != "0.0.0.0:8080" || rc.Web.Auth != WebAuthLocal {
		t.Fatalf("expected default web config, got %+v", rc.Web)
	}
	if !rc.Discovery.Enabled || rc.Discovery.ServiceName != "truST" {
		t.Fatalf("expected default discovery config, got %+v", rc.Discovery)
	}
	if len(rc.Tasks) != 1 || rc.Tasks[0].Name != "Fast" {
		t.Fatalf("expected one task override, got %+v", rc.Tasks)
	}
}

func TestLoadRuntimeConfigTcpRequiresAuthToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")
	bad := sampleRuntimeToml
	bad = strings.Replace(bad, `endpoint = "unix:///tmp/trust.sock"`, `endpoint = "tcp://0.0.0.0:9000"`, 1)
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRuntimeConfig(path); err == nil {
		t.Fatalf("expected error for tcp endpoint without auth_token")
	}
}

func TestLoadRuntimeConfigRetainFileRequiresPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")
	bad := strings.Replace(sampleRuntimeToml, `mode = "none"`, `mode = "file"`, 1)
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRuntimeConfig(path); err == nil {
		t.Fatalf("expected error for retain mode=file without path")
	}
}

func TestLoadRuntimeConfigWebTokenRequiresAuthToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")
	withWeb := sampleRuntimeToml + "\n[runtime.web]\nauth = \"token\"\n"
	if err := os.WriteFile(path, []byte(withWeb), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRuntimeConfig(path); err == nil {
		t.Fatalf("expected error for web.auth=token without control.auth_token")
	}
}

const sampleIoToml = `
[io]
driver = "simulated"

[io.params]
channels = 8

[[io.safe_state]]
address = "%QX0.0"
value = "TRUE"

[[io.safe_state]]
address = "%QB1"
value = "0xFF"
`

func TestLoadIoConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "io.toml")
	if err := os.WriteFile(path, []byte(sampleIoToml), 0o644); err != nil {
		t.Fatal(err)
	}
	ioc, err := LoadIoConfig(path)
	if err != nil {
		t.Fatalf("LoadIoConfig: %v", err)
	}
	if ioc.Driver != "simulated" {
		t.Fatalf("unexpected driver %q", ioc.Driver)
	}
	if len(ioc.SafeState) != 2 {
		t.Fatalf("expected 2 safe_state entries, got %d", len(ioc.SafeState))
	}
	if ioc.SafeState[0].Value != 1 {
		t.Fatalf("expected TRUE to parse as 1, got %d", ioc.SafeState[0].Value)
	}
	if ioc.SafeState[1].Value != 0xFF {
		t.Fatalf("expected hex 0xFF to parse as 255, got %d", ioc.SafeState[1].Value)
	}
}

func TestParseSafeStateValueRangeChecked(t *testing.T) {
	if _, err := parseSafeStateValue("256", ioimage.SizeByte); err == nil {
		t.Fatalf("expected range error for BYTE value 256")
	}
	if v, err := parseSafeStateValue("0x10", ioimage.SizeByte); err != nil || v != 16 {
		t.Fatalf("expected 16, got %d, %v", v, err)
	}
}

func TestLoadBundleMissingRuntimeToml(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBundle(dir); err == nil {
		t.Fatalf("expected error for missing runtime.toml")
	}
}

func TestApplyTaskOverrides(t *testing.T) {
	res := &ir.ResourceDef{
		Tasks: []ir.TaskConfig{
			{Name: "Fast", Interval: time.Millisecond, Priority: 5, Programs: []string{"Main"}},
			{Name: "Slow", Interval: time.Second, Priority: 9},
		},
	}
	ApplyTaskOverrides(res, []TaskOverride{
		{Name: "Fast", Interval: 20 * time.Millisecond, Priority: 1, Programs: []string{"Main", "Aux"}},
		{Name: "Unknown", Interval: time.Hour},
	})
	if res.Tasks[0].Interval != 20*time.Millisecond || res.Tasks[0].Priority != 1 {
		t.Fatalf("expected Fast task overridden, got %+v", res.Tasks[0])
	}
	if len(res.Tasks[0].Programs) != 2 || res.Tasks[0].Programs[1] != "Aux" {
		t.Fatalf("expected Fast task program list overridden, got %+v", res.Tasks[0].Programs)
	}
	if res.Tasks[1].Interval != time.Second || res.Tasks[1].Priority != 9 {
		t.Fatalf("expected Slow task untouched, got %+v", res.Tasks[1])
	}
}
