package ir

import (
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// VarDef is one lowered variable declaration (§4.6).
type VarDef struct {
	Name        string
	Type        types.TypeId
	Initializer *Expr
	Qualifier   symbols.VarQualifier
	Address     string // AT %... literal, empty if none
	Retain      bool
}

// ParamDef is one lowered formal parameter.
type ParamDef struct {
	Name      string
	Type      types.TypeId
	Direction symbols.ParamDirection
}

// MethodDef is one lowered METHOD body, dispatched by VTableSlot.
type MethodDef struct {
	Name       string
	Params     []ParamDef
	Return     types.TypeId
	Vars       []VarDef
	Body       []Stmt
	Visibility symbols.Visibility
	VTableSlot int
	IsOverride bool
	IsAbstract bool
	IsFinal    bool
	IsStatic   bool
}

// PropertyDef is one lowered PROPERTY.
type PropertyDef struct {
	Name       string
	Type       types.TypeId
	HasGet     bool
	HasSet     bool
	Visibility symbols.Visibility
}

// ProgramDef is a lowered PROGRAM.
type ProgramDef struct {
	Name string
	Vars []VarDef
	Body []Stmt
}

// FunctionDef is a lowered FUNCTION.
type FunctionDef struct {
	Name   string
	Params []ParamDef
	Return types.TypeId
	Vars   []VarDef
	Body   []Stmt
}

// FunctionBlockDef is a lowered FUNCTION_BLOCK: its own implicit body (run
// once per call, before any explicit method the caller invokes) plus its
// methods.
type FunctionBlockDef struct {
	Name       string
	Vars       []VarDef
	Body       []Stmt
	Methods    []MethodDef
	Properties []PropertyDef
	Extends    string
	Implements []string
}

// ClassDef is a lowered CLASS, with methods, parent, interfaces.
type ClassDef struct {
	Name       string
	Vars       []VarDef
	Methods    []MethodDef
	Properties []PropertyDef
	Extends    string
	Implements []string
	IsAbstract bool
	IsFinal    bool
}

// InterfaceDef is a lowered INTERFACE.
type InterfaceDef struct {
	Name       string
	Methods    []MethodSig
	Properties []PropertySig
	Extends    []string
}

// MethodSig is an interface method signature (no body).
type MethodSig struct {
	Name   string
	Params []ParamDef
	Return types.TypeId
}

// PropertySig is an interface property signature.
type PropertySig struct {
	Name   string
	Type   types.TypeId
	HasGet bool
	HasSet bool
}

// TaskConfig is a lowered TASK configuration (§3.3, §4.8).
type TaskConfig struct {
	Name       string
	Interval   time.Duration // 0 disables periodic firing
	Single     string        // global variable name for edge-triggering, empty if none
	Priority   int           // 0..15, smaller = higher priority (open question decision)
	Programs   []string      // program instance names, declaration order
	FbInstances []storage.ValueRef
}

// ProgramAssignment binds a program instance to a task, or leaves it
// background (TaskName empty) per §4.8 step 4.
type ProgramAssignment struct {
	ProgramName  string
	InstanceName string
	TaskName     string
}

// AccessBinding is one VAR_ACCESS entry (§4.6 Configuration, §6.1).
type AccessBinding struct {
	Name string
	Ref  storage.ValueRef
}

// VarConfigEntry completes a wildcard address on a declared variable
// (§3.4, §4.6).
type VarConfigEntry struct {
	Path    string // dotted path to the target variable
	Address ioimage.Address
}

// ResourceDef is a lowered RESOURCE: I/O sizes plus its task list.
type ResourceDef struct {
	Name           string
	InputSize      int
	OutputSize     int
	MemorySize     int
	Tasks          []TaskConfig
	ProgramAssigns []ProgramAssignment
}

// ConfigurationDef is the lowered CONFIGURATION.
type ConfigurationDef struct {
	Name      string
	Resources []ResourceDef
	Access    []AccessBinding
	VarConfig []VarConfigEntry
}

// Program is the full lowered output of one project ([E]'s result, [F]'s
// static half): every POU kind plus the configuration, keyed by name.
type Program struct {
	Types      *types.Registry
	Programs   map[string]*ProgramDef
	Functions  map[string]*FunctionDef
	FBs        map[string]*FunctionBlockDef
	Classes    map[string]*ClassDef
	Interfaces map[string]*InterfaceDef
	Config     *ConfigurationDef
}

// NewProgram creates an empty Program bound to the given type registry.
func NewProgram(reg *types.Registry) *Program {
	return &Program{
		Types:      reg,
		Programs:   make(map[string]*ProgramDef),
		Functions:  make(map[string]*FunctionDef),
		FBs:        make(map[string]*FunctionBlockDef),
		Classes:    make(map[string]*ClassDef),
		Interfaces: make(map[string]*InterfaceDef),
	}
}
