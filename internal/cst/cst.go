// Package cst defines the contract the core consumes from the (external)
// lexer and concrete syntax tree parser: a lossless, kind-tagged green tree
// plus byte spans. The core never builds one of these; it only walks one.
package cst

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trust-automation/trust"
)

// Kind is a closed enumeration of syntax node kinds. New kinds require a
// matching exhaustive-switch update everywhere a Kind is consumed.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindProgram
	KindFunction
	KindFunctionBlock
	KindClass
	KindMethod
	KindProperty
	KindInterface
	KindNamespace
	KindUsingDirective
	KindConfiguration
	KindResource
	KindTaskConfig
	KindProgramConfig
	KindVarAccessBlock
	KindVarConfigBlock
	KindTypeDecl
	KindStructDef
	KindUnionDef
	KindEnumDef
	KindArrayType
	KindPointerType
	KindReferenceType
	KindStringType
	KindSubrange
	KindVarBlock
	KindVarDecl
	KindName
	KindQualifiedName
	KindTypeRef
	KindStmtList
	KindAssignStmt
	KindIfStmt
	KindCaseStmt
	KindForStmt
	KindWhileStmt
	KindRepeatStmt
	KindReturnStmt
	KindExitStmt
	KindContinueStmt
	KindJmpStmt
	KindLabelStmt
	KindBinaryExpr
	KindUnaryExpr
	KindCallExpr
	KindIndexExpr
	KindFieldExpr
	KindDerefExpr
	KindAddrExpr
	KindSizeOfExpr
	KindNameRef
	KindLiteral
	KindThisExpr
	KindSuperExpr
	KindImplementsClause
	KindExtendsClause
	KindArgList
	KindArg
	kindSentinel // keep last: count of defined kinds
)

// NumKinds is the number of closed Kind values, for exhaustiveness assertions.
const NumKinds = int(kindSentinel)

func (k Kind) String() string {
	names := [...]string{
		"Unknown", "Program", "Function", "FunctionBlock", "Class", "Method",
		"Property", "Interface", "Namespace", "UsingDirective", "Configuration",
		"Resource", "TaskConfig", "ProgramConfig", "VarAccessBlock",
		"VarConfigBlock", "TypeDecl", "StructDef", "UnionDef", "EnumDef",
		"ArrayType", "PointerType", "ReferenceType", "StringType", "Subrange",
		"VarBlock", "VarDecl", "Name", "QualifiedName", "TypeRef", "StmtList",
		"AssignStmt", "IfStmt", "CaseStmt", "ForStmt", "WhileStmt",
		"RepeatStmt", "ReturnStmt", "ExitStmt", "ContinueStmt", "JmpStmt",
		"LabelStmt", "BinaryExpr", "UnaryExpr", "CallExpr", "IndexExpr",
		"FieldExpr", "DerefExpr", "AddrExpr", "SizeOfExpr", "NameRef",
		"Literal", "ThisExpr", "SuperExpr", "ImplementsClause",
		"ExtendsClause", "ArgList", "Arg",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Invalid"
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, NumKinds)
	for k := Kind(0); int(k) < NumKinds; k++ {
		m[k.String()] = k
	}
	return m
}()

// MarshalJSON renders a Kind as its name, so a serialized tree (the
// interchange format an external parser hands to trustc) reads like syntax
// rather than an opaque integer.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a Kind from its name, case-insensitively.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kn, kv := range kindByName {
		if strings.EqualFold(kn, name) {
			*k = kv
			return nil
		}
	}
	return fmt.Errorf("cst: unknown Kind %q", name)
}

// Trivia carries whitespace/comment tokens attached to a node, kept for
// lossless round-tripping by external tooling; the core ignores it.
type Trivia struct {
	Text string    `json:"text"`
	Span trust.Span `json:"span"`
}

// Node is the lossless green-tree node the core walks. Token nodes have no
// Children and a non-empty Text; composite nodes have Children and empty Text.
//
// The json tags make Node the interchange format trustc's "build" subcommand
// reads: an externally-produced tree serialized to JSON, since the lexer/CST
// parser themselves remain outside the core's boundary.
type Node struct {
	Kind     Kind       `json:"kind"`
	Text     string     `json:"text,omitempty"` // token lexeme, for leaf nodes
	Span     trust.Span `json:"span"`
	Children []*Node    `json:"children,omitempty"`
	Leading  []Trivia   `json:"leading,omitempty"`
	Trailing []Trivia   `json:"trailing,omitempty"`
}

// Child returns the first child of the given kind, or nil.
func (n *Node) Child(k Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == k {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all direct children of the given kind.
func (n *Node) ChildrenOf(k Kind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// IsToken reports whether n is a leaf token node.
func (n *Node) IsToken() bool {
	return len(n.Children) == 0
}
