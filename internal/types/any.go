package types

// capability set membership for the generic ANY_* tags (§4.5). Each set is
// expressed as a builtin TypeId predicate so Satisfies can be exhaustive
// without allocating per call.
func isSignedInt(id TypeId) bool {
	switch id {
	case Sint, Int, Dint, Lint:
		return true
	}
	return false
}

func isUnsignedInt(id TypeId) bool {
	switch id {
	case Usint, Uint, Udint, Ulint:
		return true
	}
	return false
}

func isBitString(id TypeId) bool {
	switch id {
	case Bool, Byte, Word, Dword, Lword:
		return true
	}
	return false
}

func isReal(id TypeId) bool {
	return id == Real || id == Lreal
}

func isDuration(id TypeId) bool {
	return id == Time || id == Ltime
}

func isDateLike(id TypeId) bool {
	switch id {
	case Date, Ldate, Tod, Ltod, Dt, Ldt:
		return true
	}
	return false
}

func isChar(id TypeId) bool {
	return id == Char || id == WChar
}

func isStringLike(kind Kind) bool {
	return kind == KindString || kind == KindWString
}

// Satisfies reports whether a resolved candidate type (after alias
// resolution) satisfies the capability named by anyTag. String/WString
// candidates are recognised by the Kind they are registered with.
func (r *Registry) Satisfies(anyTag, candidate TypeId) bool {
	resolved := r.ResolveAlias(candidate)
	t, _ := r.byId[resolved]
	isSigned := isSignedInt(resolved)
	isUnsigned := isUnsignedInt(resolved)
	isBit := isBitString(resolved)
	isFloat := isReal(resolved)
	isDur := isDuration(resolved)
	isDate := isDateLike(resolved)
	isCh := isChar(resolved)
	isStr := isStringLike(t.Kind)
	isDerived := t.Kind == KindStruct || t.Kind == KindUnion || t.Kind == KindEnum ||
		t.Kind == KindAlias || t.Kind == KindSubrange || t.Kind == KindArray

	switch anyTag {
	case AnyInt:
		return isSigned || isUnsigned
	case AnySigned:
		return isSigned
	case AnyUnsigned:
		return isUnsigned
	case AnyReal:
		return isFloat
	case AnyNum:
		return isSigned || isUnsigned || isFloat
	case AnyBit:
		return isBit
	case AnyMagnitude:
		return isSigned || isUnsigned || isFloat || isDur
	case AnyDuration:
		return isDur
	case AnyDate:
		return isDate
	case AnyChar:
		return isCh
	case AnyString:
		return isStr
	case AnyChars:
		return isStr || isCh
	case AnyDerived:
		return isDerived
	case AnyElementary:
		return isSigned || isUnsigned || isFloat || isBit || isDur || isDate || isCh || isStr
	default:
		return false
	}
}
