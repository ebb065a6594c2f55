// Package diag implements the compile-time diagnostics plane (§7): a closed
// set of codes grouped by area, each with a default severity and a primary
// range plus optional related ranges (definition site, conflicting
// declaration).
package diag

import (
	"fmt"

	"github.com/trust-automation/trust"
)

// Code is a closed diagnostic code enumeration, grouped by area:
// E0xx syntax, E1xx name resolution, E2xx types, E3xx semantics, Wxxx
// warnings, Ixxx hints.
type Code string

const (
	// E0xx syntax (surfaced by the external parser; reserved here so the
	// enumeration stays centralized even though this core never emits them).
	ESyntaxError Code = "E001"

	// E1xx name resolution
	EUnresolvedName      Code = "E101"
	EAmbiguousName       Code = "E102"
	EDuplicateDeclaration Code = "E103"
	EUnresolvedType      Code = "E104"
	ECyclicInheritance   Code = "E105"

	// E2xx types
	ETypeMismatch       Code = "E201"
	EInvalidOperation   Code = "E202"
	EArrayBoundsMismatch Code = "E203"
	EIndexOutOfRange    Code = "E204"
	EWrongArgCount      Code = "E205"
	EInvalidDereference Code = "E206"
	EInvalidAddrOf      Code = "E207"
	EPointerUnsupported Code = "E208"

	// E3xx semantics
	EInvalidPriority       Code = "E301"
	EInvalidInterval       Code = "E302"
	EUndefinedProgramRef   Code = "E303"
	EWildcardUnresolved    Code = "E304"
	EExternalMismatch      Code = "E305"
	EAbstractInstantiation Code = "E306"
	EInterfaceIncomplete   Code = "E307"
	EInvalidOverride       Code = "E308"
	EFinalExtended         Code = "E309"
	EInvalidControlFlow    Code = "E310"
	EZeroStep              Code = "E311"

	// Wxxx warnings
	WUnusedSymbol     Code = "W001"
	WUnreachableCode  Code = "W002"
	WSharedGlobal     Code = "W003"
	WHighComplexity   Code = "W004"
	WMemberShadow     Code = "W005"

	// Ixxx hints
	INonDeterminism Code = "I001"
)

// DefaultSeverity returns the severity a Code carries unless overridden by
// policy.
func DefaultSeverity(c Code) trust.Severity {
	switch {
	case len(c) > 0 && c[0] == 'E':
		return trust.SeverityError
	case len(c) > 0 && c[0] == 'W':
		return trust.SeverityWarning
	case len(c) > 0 && c[0] == 'I':
		return trust.SeverityHint
	default:
		return trust.SeverityInfo
	}
}

// Related is an auxiliary range attached to a Diagnostic (e.g. a definition
// site or a conflicting declaration).
type Related struct {
	Location trust.SourceLocation
	Message  string
}

// Diagnostic is one compile-time finding.
type Diagnostic struct {
	Code     Code
	Severity trust.Severity
	Location trust.SourceLocation
	Message  string
	Related  []Related
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", d.Location, d.Severity, d.Code, d.Message)
}

// New builds a Diagnostic with the code's default severity.
func New(code Code, loc trust.SourceLocation, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: DefaultSeverity(code),
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	}
}

// WithRelated returns a copy of d with an additional related range.
func (d Diagnostic) WithRelated(loc trust.SourceLocation, message string) Diagnostic {
	d.Related = append(append([]Related(nil), d.Related...), Related{Location: loc, Message: message})
	return d
}

// Bag collects diagnostics for a single analyze() run, tracking whether any
// error-severity diagnostic gates lowering (errors gate lowering; warnings
// never do, §4.1 step 6).
type Bag struct {
	items []Diagnostic
}

// Add appends d to the bag.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// Items returns all collected diagnostics, in insertion order.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// HasErrors reports whether any diagnostic in the bag is error-severity.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == trust.SeverityError {
			return true
		}
	}
	return false
}
