// Command trustc compiles an externally-parsed syntax tree into a
// program.stbc container: it owns none of the lexing/parsing (internal/cst
// is a contract, not a producer), only the pipeline from a serialized
// cst.Node tree through symbol binding, semantic checking, lowering, and
// bytecode encoding.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"

	"github.com/trust-automation/trust/internal/bind"
	"github.com/trust-automation/trust/internal/bytecode"
	"github.com/trust-automation/trust/internal/check"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/hirdb"
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/lower"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

var (
	traceLevel string
	outPath    string
)

func main() {
	gtrace.SyntaxTracer = gologadapter.New()

	rootCmd := &cobra.Command{
		Use:   "trustc",
		Short: "truST compile driver",
		Long:  "Binds, checks, and lowers an externally-parsed syntax tree into a program.stbc container.",
	}
	rootCmd.PersistentFlags().StringVar(&traceLevel, "trace", "Error", "Trace level [Debug|Info|Error]")

	buildCmd := &cobra.Command{
		Use:   "build <decls.json>",
		Short: "Compile a JSON-serialized cst.Node declaration list into program.stbc",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gtrace.SyntaxTracer.SetTraceLevel(tracing.TraceLevelFromString(traceLevel))
			return build(args[0], outPath)
		},
	}
	buildCmd.Flags().StringVarP(&outPath, "out", "o", "program.stbc", "Output container path")
	rootCmd.AddCommand(buildCmd)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// declsFile is the JSON shape a "build" invocation reads: a flat list of
// top-level declaration nodes (internal/cst's MarshalJSON/UnmarshalJSON
// tags make each *cst.Node self-describing), wrapped under one file path
// since hirdb's FileInput is keyed by path even for a single-file build.
type declsFile struct {
	Path  string      `json:"path"`
	Decls []*cst.Node `json:"decls"`
}

func build(path, out string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("trustc: %w", err)
	}
	var df declsFile
	if err := json.Unmarshal(raw, &df); err != nil {
		return fmt.Errorf("trustc: parsing %s: %w", path, err)
	}
	if df.Path == "" {
		df.Path = path
	}

	reg := types.NewRegistry()
	db := hirdb.New(reg, bind.Build, check.RunAll)
	tree := &cst.Node{Kind: cst.KindUnknown, Children: df.Decls}
	db.SetFile(df.Path, tree)

	res, err := db.Analyze([]string{df.Path}, df.Path)
	if err != nil {
		return fmt.Errorf("trustc: analyzing %s: %w", df.Path, err)
	}
	if printDiagnostics(res.Diagnostics) {
		return fmt.Errorf("trustc: %s has errors, aborting", df.Path)
	}

	checker := &check.Checker{Reg: reg, Table: res.Symbols, Bag: res.Diagnostics, File: df.Path}
	lw := &lower.Lowerer{Checker: checker, Bag: res.Diagnostics, File: df.Path}
	prog := lw.LowerProject(reg, df.Decls)
	if printDiagnostics(res.Diagnostics) {
		return fmt.Errorf("trustc: %s has errors after lowering, aborting", df.Path)
	}

	mod := &bytecode.Module{Program: prog, Bindings: collectBindings(prog)}
	data, err := bytecode.Encode(mod)
	if err != nil {
		return fmt.Errorf("trustc: encoding container: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("trustc: writing %s: %w", out, err)
	}
	pterm.Info.Printf("wrote %s (%d bytes)\n", out, len(data))
	return nil
}

// printDiagnostics prints every diagnostic and reports whether any is an
// error-severity diagnostic (the abort condition).
func printDiagnostics(bag *diag.Bag) bool {
	for _, d := range bag.Items() {
		fmt.Println(d.String())
	}
	return bag.HasErrors()
}

// collectBindings derives the resolved I/O binding table from every
// AT-bound program variable plus the configuration's completed VAR_CONFIG
// wildcard entries, the same two sources internal/lower's LowerConfiguration
// keeps separate (declared-at-the-variable vs. completed-at-the-resource).
func collectBindings(prog *ir.Program) []ioimage.Binding {
	var out []ioimage.Binding
	for progName, pd := range prog.Programs {
		for _, v := range pd.Vars {
			if v.Address == "" {
				continue
			}
			addr, err := ioimage.ParseAddress(v.Address)
			if err != nil {
				continue
			}
			out = append(out, ioimage.Binding{
				Address: addr,
				Ref:     storage.ValueRef{Location: storage.LocGlobal, Name: progName, Path: []storage.PathElem{storage.Field(v.Name)}},
				Type:    v.Type,
			})
		}
	}
	if prog.Config == nil {
		return out
	}
	for _, vc := range prog.Config.VarConfig {
		out = append(out, ioimage.Binding{
			Address: vc.Address,
			Ref:     pathRef(vc.Path),
			Type:    types.Unknown,
		})
	}
	return out
}

// pathRef mirrors internal/lower/config.go's parseAccessPath: a dotted
// path's first segment is the global-visible root, the rest descend fields.
func pathRef(path string) storage.ValueRef {
	parts := strings.Split(path, ".")
	ref := storage.ValueRef{Location: storage.LocGlobal}
	if len(parts) == 0 {
		return ref
	}
	ref.Name = parts[0]
	for _, p := range parts[1:] {
		ref.Path = append(ref.Path, storage.Field(p))
	}
	return ref
}
