// Command trustrt hosts one compiled bundle: it loads runtime.toml/io.toml/
// program.stbc from a project folder, and runs the resource's scheduler in
// a cyclic driving loop until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"

	"github.com/trust-automation/trust/internal/control"
	"github.com/trust-automation/trust/internal/eval"
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/retain"
	"github.com/trust-automation/trust/internal/rtconfig"
	"github.com/trust-automation/trust/internal/sched"
	"github.com/trust-automation/trust/internal/storage"
)

var traceLevel string
var coldStart bool

func main() {
	initDisplay()
	gtrace.SyntaxTracer = gologadapter.New()

	rootCmd := &cobra.Command{
		Use:   "trustrt",
		Short: "truST runtime host",
		Long:  "Hosts a compiled truST bundle: loads its configuration and runs its resource's scheduler.",
	}
	rootCmd.PersistentFlags().StringVar(&traceLevel, "trace", "Info", "Trace level [Debug|Info|Error]")

	runCmd := &cobra.Command{
		Use:   "run <bundle-dir>",
		Short: "Load and run a bundle's resource until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gtrace.SyntaxTracer.SetTraceLevel(tracing.TraceLevelFromString(traceLevel))
			return run(args[0])
		},
	}
	runCmd.Flags().BoolVar(&coldStart, "cold", false, "force a cold restart, discarding any persisted retain snapshot")
	rootCmd.AddCommand(runCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("trustrt (truST runtime host)")
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func initDisplay() {
	pterm.Info.Prefix = pterm.Prefix{Text: "  >>", Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack)}
	pterm.Error.Prefix = pterm.Prefix{Text: "  Error", Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack)}
}

func run(root string) error {
	bundle, err := rtconfig.LoadBundle(root)
	if err != nil {
		return err
	}
	rc := bundle.Runtime

	res, err := findResource(bundle.Program.Program.Config, rc.ResourceName)
	if err != nil {
		return err
	}
	rtconfig.ApplyTaskOverrides(res, rc.Tasks)

	store := storage.NewVariableStorage()
	evaluator := eval.NewEvaluator(store, bundle.Program.Program)

	reg := bundle.Program.Program.Types
	retainMgr, err := retain.NewManager(store, reg, rc.RetainMode, rc.RetainPath, rc.RetainSaveInterval)
	if err != nil {
		return err
	}
	if coldStart {
		if err := retainMgr.ResetCold(); err != nil {
			return err
		}
	} else if warnings, err := retainMgr.Load(); err != nil {
		return err
	} else {
		for _, w := range warnings {
			pterm.Warning.Println(w)
		}
	}
	retainMgr.Start()
	defer retainMgr.Stop()

	img := ioimage.NewImage(res.InputSize, res.OutputSize, res.MemorySize)
	if bundle.Io != nil {
		if err := img.ApplySafeState(bundle.Io.SafeState); err != nil {
			return fmt.Errorf("applying safe_state at startup: %w", err)
		}
	}

	scheduler, err := sched.NewScheduler(evaluator, res)
	if err != nil {
		return err
	}

	watchdog := retain.NewWatchdog(rc.Watchdog)

	ctrl := control.NewRuntimeController(evaluator, img, bundle.Program.Bindings)
	var srv *control.Server
	if rc.ControlEndpoint != "" {
		ln, err := control.Listen(rc.ControlEndpoint)
		if err != nil {
			return err
		}
		defer ln.Close()
		srv = &control.Server{Controller: ctrl, AuthToken: rc.ControlAuthToken}
		go func() {
			if err := srv.Serve(ln); err != nil {
				control.T().Infof("control server stopped: %v", err)
			}
		}()
		pterm.Info.Printf("control endpoint listening on %s\n", rc.ControlEndpoint)
	}

	drv := simulatedDriver{}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	interval := rc.CycleInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pterm.Info.Printf("running resource %q (cycle interval %s)\n", res.Name, interval)

	var cycle int64
	safeState := safeStateOf(bundle)
	for {
		select {
		case <-sigCh:
			pterm.Info.Println("shutting down")
			return nil
		case now := <-ticker.C:
			cycle++
			ctrl.Gate.BeforeCycle(cycle)
			err := img.RunCycleIO(drv, func() error {
				if err := img.SyncInputs(bundle.Program.Bindings, store); err != nil {
					return err
				}
				if err := scheduler.RunCycle(now); err != nil {
					return err
				}
				return img.SyncOutputs(bundle.Program.Bindings, store)
			})
			ctrl.Gate.AfterCycle()
			if err != nil {
				halt, faultErr := retain.ApplyFault(rc.FaultPolicy, img, safeState)
				if faultErr != nil {
					return fmt.Errorf("cycle %d: %w (applying fault policy: %v)", cycle, err, faultErr)
				}
				pterm.Error.Printf("cycle %d: %v\n", cycle, err)
				if halt {
					return err
				}
				continue
			}
			watchdog.Feed(now)
			if watchdog.Overrun(time.Now()) {
				halt, err := watchdog.Trip(img, safeState, retainMgr)
				if err != nil {
					return fmt.Errorf("watchdog trip: %w", err)
				}
				if halt {
					pterm.Warning.Println("watchdog timeout: resource halted")
					return nil
				}
			}
		}
	}
}

func findResource(cfg *ir.ConfigurationDef, name string) (*ir.ResourceDef, error) {
	if cfg == nil || len(cfg.Resources) == 0 {
		return nil, fmt.Errorf("trustrt: compiled bundle declares no resources")
	}
	if name == "" {
		return &cfg.Resources[0], nil
	}
	for i := range cfg.Resources {
		if cfg.Resources[i].Name == name {
			return &cfg.Resources[i], nil
		}
	}
	return nil, fmt.Errorf("trustrt: runtime.toml names resource %q, not found in compiled bundle", name)
}

func safeStateOf(bundle *rtconfig.Bundle) []ioimage.SafeStateEntry {
	if bundle.Io == nil {
		return nil
	}
	return bundle.Io.SafeState
}

// simulatedDriver is the default I/O transport when no real driver is wired
// in: it leaves the input area exactly as the control endpoint's io.write
// commands and the process image's prior state left it, and discards
// writes. GPIO/fieldbus driver bodies are out of scope; a real deployment
// replaces this with a Driver backed by the hardware io.toml names.
type simulatedDriver struct{}

func (simulatedDriver) ReadInputs(buf []byte) error   { return nil }
func (simulatedDriver) WriteOutputs(buf []byte) error { return nil }
