// Package check implements the type checker and OOP conformance engine
// ([D]): expression typing over cst.Node, assignment compatibility, and
// EXTENDS/IMPLEMENTS structural verification, grounded on the teacher's
// terex pattern-match/rewrite passes (lr/pattern matching generalized from
// syntax-tree shape matching to type-compatibility matching) and on
// original_source/crates/trust-hir/src/checker.rs for the exact rule set.
package check

import (
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// signedLadder and unsignedLadder encode the widening order named in §4.5.
var signedLadder = []types.TypeId{types.Sint, types.Int, types.Dint, types.Lint}
var unsignedLadder = []types.TypeId{types.Usint, types.Uint, types.Udint, types.Ulint}
var bitLadder = []types.TypeId{types.Byte, types.Word, types.Dword, types.Lword}

func ladderIndex(ladder []types.TypeId, id types.TypeId) int {
	for i, t := range ladder {
		if t == id {
			return i
		}
	}
	return -1
}

// AssignableWithin reports whether a value of type src can be assigned to a
// variable of type dst (after alias resolution), per §4.5.
func AssignableWithin(reg *types.Registry, t *symbols.Table, dst, src types.TypeId) bool {
	rd, rs := reg.ResolveAlias(dst), reg.ResolveAlias(src)
	if rd == rs || rs == types.Unknown || rd == types.Unknown {
		return true
	}
	if types.IsAnyTag(rd) {
		return reg.Satisfies(rd, rs)
	}

	if i, j := ladderIndex(signedLadder, rd), ladderIndex(signedLadder, rs); i >= 0 && j >= 0 {
		return j <= i
	}
	if i, j := ladderIndex(unsignedLadder, rd), ladderIndex(unsignedLadder, rs); i >= 0 && j >= 0 {
		return j <= i
	}
	if i, j := ladderIndex(bitLadder, rd), ladderIndex(bitLadder, rs); i >= 0 && j >= 0 {
		return j <= i
	}
	if rd == types.Lreal {
		switch rs {
		case types.Real, types.Lint, types.Dint, types.Int, types.Sint, types.Lreal:
			return true
		}
	}
	if rd == types.Real && rs == types.Real {
		return true
	}

	dstT, dok := reg.Get(rd)
	srcT, sok := reg.Get(rs)
	if dok && sok {
		if (dstT.Kind == types.KindString || dstT.Kind == types.KindWString) &&
			(srcT.Kind == types.KindString || srcT.Kind == types.KindWString) {
			return dstT.Kind == srcT.Kind
		}
		if dstT.Kind == types.KindArray && srcT.Kind == types.KindArray {
			return arrayAssignable(reg, t, dstT, srcT)
		}
		if dstT.Kind == types.KindReference && (srcT.Kind == types.KindReference || rs == types.Null) {
			if rs == types.Null {
				return true
			}
			return referenceBaseCompatible(t, dstT.Element, srcT.Element, reg)
		}
		if dstT.Kind == types.KindInterface {
			if rs == types.Null {
				return true
			}
			return implementsInterface(t, reg.TypeName(rs), reg.TypeName(rd))
		}
	}
	return false
}

func arrayAssignable(reg *types.Registry, t *symbols.Table, dst, src types.Type) bool {
	if len(dst.Dimensions) != len(src.Dimensions) {
		return false
	}
	for i := range dst.Dimensions {
		d, s := dst.Dimensions[i], src.Dimensions[i]
		if d.IsWildcard() || s.IsWildcard() {
			continue
		}
		if d.Lower != s.Lower || d.Upper != s.Upper {
			return false
		}
	}
	return AssignableWithin(reg, t, dst.Element, src.Element)
}

// referenceBaseCompatible allows a REF_TO target if the source class/FB
// inherits the target's named type, directly or transitively.
func referenceBaseCompatible(t *symbols.Table, dstElem, srcElem types.TypeId, reg *types.Registry) bool {
	if dstElem == srcElem {
		return true
	}
	dstName, srcName := reg.TypeName(dstElem), reg.TypeName(srcElem)
	return inheritsFrom(t, srcName, dstName) || implementsInterface(t, srcName, dstName)
}

// inheritsFrom walks derived's EXTENDS chain looking for baseName.
func inheritsFrom(t *symbols.Table, derived, baseName string) bool {
	sym, ok := t.LookupAny(derived)
	for ok {
		ext, hasExt := t.ExtendsName(sym.Id)
		if !hasExt {
			return false
		}
		if equalFold(ext, baseName) {
			return true
		}
		sym, ok = t.LookupAny(ext)
	}
	return false
}

// implementsInterface reports whether className implements ifaceName,
// directly or via one of its super-interfaces.
func implementsInterface(t *symbols.Table, className, ifaceName string) bool {
	sym, ok := t.LookupAny(className)
	if !ok {
		return false
	}
	visited := map[string]bool{}
	var walk func(name string) bool
	walk = func(name string) bool {
		if visited[name] {
			return false
		}
		visited[name] = true
		s, ok := t.LookupAny(name)
		if !ok {
			return false
		}
		for _, impl := range t.ImplementsNames(s.Id) {
			if equalFold(impl, ifaceName) {
				return true
			}
			if walk(impl) {
				return true
			}
		}
		if ext, hasExt := t.ExtendsName(s.Id); hasExt {
			return walk(ext)
		}
		return false
	}
	return walk(sym.Name)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
