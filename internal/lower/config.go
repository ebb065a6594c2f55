package lower

import (
	"strconv"
	"strings"
	"time"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
)

// attrs parses a node's space-separated KEY=VALUE attribute text, the same
// lightweight convention used for VAR block RETAIN and METHOD modifiers.
func attrs(text string) map[string]string {
	out := map[string]string{}
	for _, field := range strings.Fields(text) {
		if i := strings.Index(field, "="); i > 0 {
			out[strings.ToUpper(field[:i])] = field[i+1:]
		}
	}
	return out
}

// lowerTask lowers one TASK declaration within a RESOURCE (§4.8). A task's
// interval/priority/single attributes are carried on the TaskConfig node's
// Text field, e.g. "INTERVAL=T#100ms PRIORITY=5 SINGLE=startTrig".
func (lw *Lowerer) lowerTask(n *cst.Node) ir.TaskConfig {
	a := attrs(n.Text)
	name := ""
	if nameNode := n.Child(cst.KindName); nameNode != nil {
		name = nameNode.Text
	}
	tc := ir.TaskConfig{Name: name, Single: a["SINGLE"]}

	if iv, ok := a["INTERVAL"]; ok {
		d, err := parseTimeLiteral(iv)
		if err != nil {
			lw.Bag.Add(diag.New(diag.EInvalidInterval, lw.loc(n), "TASK %q has an invalid INTERVAL %q: %v", name, iv, err))
		} else {
			tc.Interval = d
		}
	}
	if pr, ok := a["PRIORITY"]; ok {
		p, err := strconv.Atoi(pr)
		if err != nil || p < 0 || p > 15 {
			lw.Bag.Add(diag.New(diag.EInvalidPriority, lw.loc(n), "TASK %q has an invalid PRIORITY %q: must be 0..15", name, pr))
		} else {
			tc.Priority = p
		}
	}
	return tc
}

// parseTimeLiteral parses a TIME literal body, accepting both a bare
// duration ("100ms") and a typed-literal form ("T#100ms"/"TIME#1s500ms").
func parseTimeLiteral(s string) (time.Duration, error) {
	if i := strings.Index(s, "#"); i >= 0 {
		s = s[i+1:]
	}
	return time.ParseDuration(strings.ToLower(s))
}

// lowerProgramAssignment lowers one PROGRAM instance binding within a
// RESOURCE. Shape: Child(Name) = instance name, optional second Child(Name)
// = program type name (defaults to the instance name); a "WITH <task>"
// attribute on Text assigns it to a task, absent meaning a background task.
func lowerProgramAssignment(n *cst.Node) ir.ProgramAssignment {
	names := n.ChildrenOf(cst.KindName)
	pa := ir.ProgramAssignment{}
	if len(names) > 0 {
		pa.InstanceName = names[0].Text
	}
	pa.ProgramName = pa.InstanceName
	if len(names) > 1 {
		pa.ProgramName = names[1].Text
	}
	upper := strings.ToUpper(n.Text)
	if i := strings.Index(upper, "WITH "); i >= 0 {
		pa.TaskName = strings.TrimSpace(n.Text[i+len("WITH "):])
	}
	return pa
}

// lowerResource lowers one RESOURCE declaration: its I/O sizes (carried on
// Text, e.g. "INPUT=1024 OUTPUT=1024 MEMORY=4096") plus its tasks and
// program assignments.
func (lw *Lowerer) lowerResource(n *cst.Node) ir.ResourceDef {
	a := attrs(n.Text)
	name := ""
	if nameNode := n.Child(cst.KindName); nameNode != nil {
		name = nameNode.Text
	}
	rd := ir.ResourceDef{
		Name:       name,
		InputSize:  atoiOr(a["INPUT"], 0),
		OutputSize: atoiOr(a["OUTPUT"], 0),
		MemorySize: atoiOr(a["MEMORY"], 0),
	}
	for _, tn := range n.ChildrenOf(cst.KindTaskConfig) {
		rd.Tasks = append(rd.Tasks, lw.lowerTask(tn))
	}
	for _, pn := range n.ChildrenOf(cst.KindProgramConfig) {
		pa := lowerProgramAssignment(pn)
		if pa.TaskName != "" && !hasTask(rd.Tasks, pa.TaskName) {
			lw.Bag.Add(diag.New(diag.EUndefinedProgramRef, lw.loc(pn), "PROGRAM %q references undeclared TASK %q", pa.InstanceName, pa.TaskName))
		}
		rd.ProgramAssigns = append(rd.ProgramAssigns, pa)
	}
	return rd
}

func hasTask(tasks []ir.TaskConfig, name string) bool {
	for _, t := range tasks {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// parseAccessPath resolves a dotted access path ("resource1.prog1.counter")
// into a ValueRef. Configuration-level paths always name a global-visible
// root (a global variable or a named PROGRAM instance, itself addressable
// like a global), so LocGlobal with field descents is sufficient without
// runtime frame information.
func parseAccessPath(path string) storage.ValueRef {
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

// lowerAccessBlock lowers a VAR_ACCESS block. Shape: VarDecl children whose
// Name is the access name and whose Text carries the dotted target path.
func (lw *Lowerer) lowerAccessBlock(n *cst.Node) []ir.AccessBinding {
	var out []ir.AccessBinding
	for _, vd := range n.ChildrenOf(cst.KindVarDecl) {
		nameNode := vd.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		out = append(out, ir.AccessBinding{Name: nameNode.Text, Ref: parseAccessPath(vd.Text)})
	}
	return out
}

// lowerVarConfigBlock lowers a VAR_CONFIG block completing wildcard
// addresses declared upstream. Shape: VarDecl children whose Name is the
// dotted path and whose Text carries the IEC address literal ("%IX0.0").
func (lw *Lowerer) lowerVarConfigBlock(n *cst.Node) []ir.VarConfigEntry {
	var out []ir.VarConfigEntry
	for _, vd := range n.ChildrenOf(cst.KindVarDecl) {
		nameNode := vd.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		addr, err := ioimage.ParseAddress(vd.Text)
		if err != nil {
			lw.Bag.Add(diag.New(diag.EWildcardUnresolved, lw.loc(vd), "VAR_CONFIG entry for %q: %v", nameNode.Text, err))
			continue
		}
		if addr.Wildcard {
			lw.Bag.Add(diag.New(diag.EWildcardUnresolved, lw.loc(vd), "VAR_CONFIG entry for %q must resolve to a concrete address, not a wildcard", nameNode.Text))
			continue
		}
		out = append(out, ir.VarConfigEntry{Path: nameNode.Text, Address: addr})
	}
	return out
}

// LowerConfiguration lowers a CONFIGURATION declaration (§4.6, §4.8).
func (lw *Lowerer) LowerConfiguration(n *cst.Node, sym *symbols.Symbol) *ir.ConfigurationDef {
	cfg := &ir.ConfigurationDef{Name: sym.Name}
	for _, rn := range n.ChildrenOf(cst.KindResource) {
		cfg.Resources = append(cfg.Resources, lw.lowerResource(rn))
	}
	for _, an := range n.ChildrenOf(cst.KindVarAccessBlock) {
		cfg.Access = append(cfg.Access, lw.lowerAccessBlock(an)...)
	}
	for _, vn := range n.ChildrenOf(cst.KindVarConfigBlock) {
		cfg.VarConfig = append(cfg.VarConfig, lw.lowerVarConfigBlock(vn)...)
	}
	return cfg
}
