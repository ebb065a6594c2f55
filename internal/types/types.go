// Package types implements the type registry ([A] in the system design):
// interning of named and structural types and resolution of TypeId handles.
//
// Interning follows the same resolve-or-create-on-demand discipline the
// teacher's runtime.SymbolTable uses for Tag values (ResolveOrDefineTag):
// a type is looked up by a structural identity key first, and only created
// if absent, so repeated registration of an identical shape is idempotent.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// TypeId is an opaque handle into a Registry.
type TypeId int32

// Builtin type ids are stable across registries (invariant (a), spec §3.1).
const (
	Unknown TypeId = iota
	Void
	Null
	Bool
	Sint
	Int
	Dint
	Lint
	Usint
	Uint
	Udint
	Ulint
	Byte
	Word
	Dword
	Lword
	Real
	Lreal
	Time
	Ltime
	Date
	Ldate
	Tod
	Ltod
	Dt
	Ldt
	String
	WString
	Char
	WChar

	AnyInt
	AnyNum
	AnyBit
	AnyDerived
	AnyElementary
	AnyMagnitude
	AnyUnsigned
	AnySigned
	AnyReal
	AnyDuration
	AnyChars
	AnyString
	AnyChar
	AnyDate

	firstDynamicId
)

var builtinNames = map[string]TypeId{
	"BOOL": Bool, "SINT": Sint, "INT": Int, "DINT": Dint, "LINT": Lint,
	"USINT": Usint, "UINT": Uint, "UDINT": Udint, "ULINT": Ulint,
	"BYTE": Byte, "WORD": Word, "DWORD": Dword, "LWORD": Lword,
	"REAL": Real, "LREAL": Lreal,
	"TIME": Time, "LTIME": Ltime, "DATE": Date, "LDATE": Ldate,
	"TOD": Tod, "LTOD": Ltod, "DT": Dt, "LDT": Ldt,
	"STRING": String, "WSTRING": WString, "CHAR": Char, "WCHAR": WChar,
	"VOID": Void, "NULL": Null,
	"ANY_INT": AnyInt, "ANY_NUM": AnyNum, "ANY_BIT": AnyBit,
	"ANY_DERIVED": AnyDerived, "ANY_ELEMENTARY": AnyElementary,
	"ANY_MAGNITUDE": AnyMagnitude, "ANY_UNSIGNED": AnyUnsigned,
	"ANY_SIGNED": AnySigned, "ANY_REAL": AnyReal, "ANY_DURATION": AnyDuration,
	"ANY_CHARS": AnyChars, "ANY_STRING": AnyString, "ANY_CHAR": AnyChar,
	"ANY_DATE": AnyDate,
}

var builtinIdNames = func() map[TypeId]string {
	m := make(map[TypeId]string, len(builtinNames))
	for name, id := range builtinNames {
		m[id] = name
	}
	return m
}()

// Kind discriminates the variant of a Type, a closed enumeration.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindArray
	KindStruct
	KindUnion
	KindEnum
	KindAlias
	KindSubrange
	KindReference
	KindPointer
	KindFunctionBlock
	KindClass
	KindInterface
	KindString
	KindWString
)

// ArrayDim is one dimension of an array type: an inclusive [Lower, Upper]
// bound. (0, math.MaxInt64) is the wildcard dimension (invariant (c), §3.1).
type ArrayDim struct {
	Lower int64
	Upper int64
}

// WildcardUpper marks a wildcard array dimension's upper bound.
const WildcardUpper = int64(1)<<63 - 1

// IsWildcard reports whether d is the (0, MaxInt64) wildcard dimension.
func (d ArrayDim) IsWildcard() bool {
	return d.Lower == 0 && d.Upper == WildcardUpper
}

// StructField is one member of a Struct type.
type StructField struct {
	Name    string
	Type    TypeId
	Address string // optional AT %... address literal, empty if none
}

// EnumValue is one member of an Enum type.
type EnumValue struct {
	Name  string
	Value int64
}

// Type is a closed-variant description of a registered type. Only the
// fields relevant to Kind are populated.
type Type struct {
	Kind Kind
	Name string // name for Struct/Union/Enum/Alias/FB/Class/Interface

	Element    TypeId     // Array element, Reference/Pointer target
	Dimensions []ArrayDim // Array

	Fields []StructField // Struct

	Variants []TypeId // Union

	EnumBase   TypeId // Enum
	EnumValues []EnumValue

	AliasTarget TypeId // Alias

	SubrangeBase  TypeId // Subrange
	SubrangeLower int64
	SubrangeUpper int64

	MaxLen    int  // String/WString, 0 means unbounded
	HasMaxLen bool
}

// Registry interns named and structural types and assigns stable TypeIds.
type Registry struct {
	byId   map[TypeId]Type
	byKey  map[string]TypeId // structural identity key -> id
	byName map[string]TypeId // user type name -> id (case-insensitive)
	nextId TypeId
}

// NewRegistry creates a registry pre-populated with builtin types.
func NewRegistry() *Registry {
	r := &Registry{
		byId:   make(map[TypeId]Type),
		byKey:  make(map[string]TypeId),
		byName: make(map[string]TypeId),
		nextId: firstDynamicId,
	}
	for name, id := range builtinNames {
		r.byId[id] = Type{Kind: KindPrimitive, Name: name}
		r.byKey["builtin:"+name] = id
	}
	return r
}

// FromBuiltinName resolves a builtin type name (case-insensitive: the name
// is upper-cased before lookup) to its stable TypeId.
func FromBuiltinName(name string) (TypeId, bool) {
	id, ok := builtinNames[strings.ToUpper(name)]
	return id, ok
}

func (r *Registry) internKey(key string, make func() Type) TypeId {
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := r.nextId
	r.nextId++
	r.byId[id] = make()
	r.byKey[key] = id
	T().P("types", key).Debugf("interned new type id %d", id)
	return id
}

// Register interns a named type, idempotent per (name, structural key).
func (r *Registry) Register(name string, t Type) TypeId {
	key := fmt.Sprintf("named:%s:%d", strings.ToLower(name), t.Kind)
	id := r.internKey(key, func() Type { t.Name = name; return t })
	r.byName[strings.ToLower(name)] = id
	return id
}

// RegisterArray interns Array{element, dimensions}.
func (r *Registry) RegisterArray(elem TypeId, dims []ArrayDim) TypeId {
	key := fmt.Sprintf("array:%d:%v", elem, dims)
	return r.internKey(key, func() Type {
		return Type{Kind: KindArray, Element: elem, Dimensions: append([]ArrayDim(nil), dims...)}
	})
}

// RegisterStruct interns a named Struct type.
func (r *Registry) RegisterStruct(name string, fields []StructField) TypeId {
	id := r.Register(name, Type{Kind: KindStruct, Fields: fields})
	return id
}

// RegisterUnion interns a named Union type.
func (r *Registry) RegisterUnion(name string, variants []TypeId) TypeId {
	return r.Register(name, Type{Kind: KindUnion, Variants: variants})
}

// RegisterEnum interns a named Enum type.
func (r *Registry) RegisterEnum(name string, base TypeId, values []EnumValue) TypeId {
	return r.Register(name, Type{Kind: KindEnum, EnumBase: base, EnumValues: values})
}

// RegisterAlias interns a named Alias type.
func (r *Registry) RegisterAlias(name string, target TypeId) TypeId {
	return r.Register(name, Type{Kind: KindAlias, AliasTarget: target})
}

// RegisterReference interns Reference{target}.
func (r *Registry) RegisterReference(target TypeId) TypeId {
	key := fmt.Sprintf("reference:%d", target)
	return r.internKey(key, func() Type { return Type{Kind: KindReference, Element: target} })
}

// RegisterPointer interns Pointer{target}. Pointer is unsupported at the IR
// level (spec §3.1); the registry still records it so the checker can reject
// it with a precise type name rather than an UNKNOWN.
func (r *Registry) RegisterPointer(target TypeId) TypeId {
	key := fmt.Sprintf("pointer:%d", target)
	return r.internKey(key, func() Type { return Type{Kind: KindPointer, Element: target} })
}

// RegisterSubrange interns Subrange{base, lower, upper}.
func (r *Registry) RegisterSubrange(base TypeId, lower, upper int64) TypeId {
	key := fmt.Sprintf("subrange:%d:%d:%d", base, lower, upper)
	return r.internKey(key, func() Type {
		return Type{Kind: KindSubrange, SubrangeBase: base, SubrangeLower: lower, SubrangeUpper: upper}
	})
}

// RegisterStringWithLength interns String/WString{max_len}. Distinct max
// lengths are distinct TypeIds (structurally assignment-compatible, §4.2).
func (r *Registry) RegisterStringWithLength(maxLen int, hasMaxLen, wide bool) TypeId {
	kind := KindString
	if wide {
		kind = KindWString
	}
	key := fmt.Sprintf("string:%v:%d:%v", wide, maxLen, hasMaxLen)
	return r.internKey(key, func() Type {
		return Type{Kind: kind, MaxLen: maxLen, HasMaxLen: hasMaxLen}
	})
}

// RegisterFunctionBlock predeclares a named FunctionBlock type.
func (r *Registry) RegisterFunctionBlock(name string) TypeId {
	return r.Register(name, Type{Kind: KindFunctionBlock})
}

// RegisterClass predeclares a named Class type.
func (r *Registry) RegisterClass(name string) TypeId {
	return r.Register(name, Type{Kind: KindClass})
}

// RegisterInterface predeclares a named Interface type.
func (r *Registry) RegisterInterface(name string) TypeId {
	return r.Register(name, Type{Kind: KindInterface})
}

// Get returns the Type for id.
func (r *Registry) Get(id TypeId) (Type, bool) {
	t, ok := r.byId[id]
	return t, ok
}

// Lookup finds a user type by name (case-insensitive).
func (r *Registry) Lookup(name string) (TypeId, bool) {
	id, ok := r.byName[strings.ToLower(name)]
	return id, ok
}

// DynamicIds returns every non-builtin type id in ascending (hence
// registration) order, for callers that need to walk the whole registry
// deterministically — e.g. internal/bytecode's TypeTable section, which
// must emit types in a stable order for a reproducible container.
func (r *Registry) DynamicIds() []TypeId {
	ids := make([]TypeId, 0, len(r.byId))
	for id := range r.byId {
		if id >= firstDynamicId {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// maxAliasDepth bounds alias-chain walking (invariant (b), §3.1).
const maxAliasDepth = 16

// ResolveAlias walks transparent Alias types up to maxAliasDepth. A
// self-alias, or a chain exceeding the depth guard, terminates the walk at
// the last resolvable id rather than looping forever.
func (r *Registry) ResolveAlias(id TypeId) TypeId {
	cur := id
	for depth := 0; depth < maxAliasDepth; depth++ {
		t, ok := r.byId[cur]
		if !ok || t.Kind != KindAlias {
			return cur
		}
		if t.AliasTarget == cur {
			return cur // self-alias
		}
		cur = t.AliasTarget
	}
	return cur
}

// TypeName renders a human-facing name for id, resolving through aliases
// only for composite/builtin display, not for the alias's own name.
func (r *Registry) TypeName(id TypeId) string {
	if name, ok := builtinIdNames[id]; ok {
		return name
	}
	t, ok := r.byId[id]
	if !ok {
		return fmt.Sprintf("<invalid type %d>", id)
	}
	switch t.Kind {
	case KindArray:
		return fmt.Sprintf("ARRAY[%s] OF %s", dimsString(t.Dimensions), r.TypeName(t.Element))
	case KindReference:
		return fmt.Sprintf("REF_TO %s", r.TypeName(t.Element))
	case KindPointer:
		return fmt.Sprintf("POINTER TO %s", r.TypeName(t.Element))
	case KindSubrange:
		return fmt.Sprintf("%s (%d..%d)", r.TypeName(t.SubrangeBase), t.SubrangeLower, t.SubrangeUpper)
	case KindString:
		if t.HasMaxLen {
			return fmt.Sprintf("STRING(%d)", t.MaxLen)
		}
		return "STRING"
	case KindWString:
		if t.HasMaxLen {
			return fmt.Sprintf("WSTRING(%d)", t.MaxLen)
		}
		return "WSTRING"
	default:
		if t.Name != "" {
			return t.Name
		}
		return fmt.Sprintf("<type %d>", id)
	}
}

func dimsString(dims []ArrayDim) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d.IsWildcard() {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprintf("%d..%d", d.Lower, d.Upper)
		}
	}
	return strings.Join(parts, ",")
}

// IsAnyTag reports whether id names one of the generic ANY_* capability tags.
func IsAnyTag(id TypeId) bool {
	return id >= AnyInt && id <= AnyDate
}
