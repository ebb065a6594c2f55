// Command trustbc inspects a compiled program.stbc container: it decodes
// the section table and prints a summary of what it holds, without
// running any of it.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trust-automation/trust/internal/bytecode"
	"github.com/trust-automation/trust/internal/ir"
)

var (
	showVars  bool
	showTasks bool
	showIo    bool
	all       bool
)

func main() {
	initDisplay()

	rootCmd := &cobra.Command{
		Use:   "trustbc",
		Short: "truST bytecode inspector",
		Long:  "Decodes a program.stbc container and prints its contents.",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <program.stbc>",
		Short: "Decode a bundle and print a summary of its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dump(args[0])
		},
	}
	dumpCmd.Flags().BoolVar(&showVars, "vars", false, "list every POU's declared variables")
	dumpCmd.Flags().BoolVar(&showTasks, "tasks", false, "list resource tasks and program assignments")
	dumpCmd.Flags().BoolVar(&showIo, "io", false, "list the resolved I/O binding table")
	dumpCmd.Flags().BoolVar(&all, "all", false, "equivalent to --vars --tasks --io")
	rootCmd.AddCommand(dumpCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("trustbc (truST bytecode inspector)")
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

func dump(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("trustbc: %w", err)
	}
	mod, err := bytecode.Decode(data)
	if err != nil {
		return fmt.Errorf("trustbc: decoding %s: %w", path, err)
	}

	prog := mod.Program
	pterm.Info.Printf("%s: %d bytes\n", path, len(data))

	printPouTable("PROGRAM", namesOf(prog.Programs))
	printPouTable("FUNCTION", namesOf(prog.Functions))
	printPouTable("FUNCTION_BLOCK", namesOf(prog.FBs))
	printPouTable("CLASS", namesOf(prog.Classes))
	printPouTable("INTERFACE", namesOf(prog.Interfaces))

	if showVars || all {
		dumpVars(prog)
	}

	if prog.Config != nil {
		fmt.Printf("\nCONFIGURATION %s\n", prog.Config.Name)
		for _, res := range prog.Config.Resources {
			fmt.Printf("  RESOURCE %s  input=%dB output=%dB memory=%dB\n",
				res.Name, res.InputSize, res.OutputSize, res.MemorySize)
			if showTasks || all {
				dumpTasks(res)
			}
		}
	}

	if showIo || all {
		dumpIo(mod)
	}

	return nil
}

func printPouTable(kind string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", kind, len(names))
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
}

func namesOf[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func dumpVars(prog *ir.Program) {
	fmt.Println("\nVariables:")
	for _, name := range namesOf(prog.Programs) {
		printVars(name, prog.Programs[name].Vars, prog)
	}
	for _, name := range namesOf(prog.Functions) {
		printVars(name, prog.Functions[name].Vars, prog)
	}
	for _, name := range namesOf(prog.FBs) {
		printVars(name, prog.FBs[name].Vars, prog)
	}
	for _, name := range namesOf(prog.Classes) {
		printVars(name, prog.Classes[name].Vars, prog)
	}
}

func printVars(owner string, vars []ir.VarDef, prog *ir.Program) {
	if len(vars) == 0 {
		return
	}
	fmt.Printf("  %s:\n", owner)
	for _, v := range vars {
		retain := ""
		if v.Retain {
			retain = " RETAIN"
		}
		addr := ""
		if v.Address != "" {
			addr = " AT " + v.Address
		}
		fmt.Printf("    %-20s %s%s%s\n", v.Name, prog.Types.TypeName(v.Type), addr, retain)
	}
}

func dumpTasks(res ir.ResourceDef) {
	if len(res.Tasks) == 0 {
		return
	}
	fmt.Println("    Tasks:")
	for _, t := range res.Tasks {
		trigger := t.Interval.String()
		if t.Single != "" {
			trigger = "SINGLE=" + t.Single
		}
		fmt.Printf("      %-16s priority=%-3d %-12s programs=%v\n", t.Name, t.Priority, trigger, t.Programs)
	}
	if len(res.ProgramAssigns) > 0 {
		fmt.Println("    Program assignments:")
		for _, a := range res.ProgramAssigns {
			task := a.TaskName
			if task == "" {
				task = "(background)"
			}
			fmt.Printf("      %s AS %s -> %s\n", a.ProgramName, a.InstanceName, task)
		}
	}
}

func dumpIo(mod *bytecode.Module) {
	if len(mod.Bindings) == 0 {
		return
	}
	fmt.Printf("\nI/O bindings (%d):\n", len(mod.Bindings))
	for _, b := range mod.Bindings {
		fmt.Printf("  %-12s %s\n", b.Address.String(), mod.Program.Types.TypeName(b.Type))
	}
}
