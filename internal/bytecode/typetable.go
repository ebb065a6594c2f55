package bytecode

import "github.com/trust-automation/trust/internal/types"

// encodeTypeTable serializes every dynamic (non-builtin) type in reg, in
// types.Registry.DynamicIds order, resolving nested TypeId references through
// enc so the container never depends on this process's own id allocation.
// strs collects every name this section needs; the caller encodes the
// StringTable section from strs once every section has interned into it.
func encodeTypeTable(reg *types.Registry, enc *typeRefEncoder, strs *stringInterner) []byte {
	ids := reg.DynamicIds()
	w := newWriter()
	w.u32(uint32(len(ids)))
	for _, id := range ids {
		t, _ := reg.Get(id)
		w.u8(uint8(t.Kind))
		switch t.Kind {
		case types.KindArray:
			w.u32(enc.encode(t.Element))
			w.u32(uint32(len(t.Dimensions)))
			for _, d := range t.Dimensions {
				w.i64(d.Lower)
				w.i64(d.Upper)
			}
		case types.KindStruct:
			w.u32(strs.intern(t.Name))
			w.u32(uint32(len(t.Fields)))
			for _, f := range t.Fields {
				w.u32(strs.intern(f.Name))
				w.u32(enc.encode(f.Type))
				w.str(f.Address)
			}
		case types.KindUnion:
			w.u32(strs.intern(t.Name))
			w.u32(uint32(len(t.Variants)))
			for _, v := range t.Variants {
				w.u32(enc.encode(v))
			}
		case types.KindEnum:
			w.u32(strs.intern(t.Name))
			w.u32(enc.encode(t.EnumBase))
			w.u32(uint32(len(t.EnumValues)))
			for _, ev := range t.EnumValues {
				w.u32(strs.intern(ev.Name))
				w.i64(ev.Value)
			}
		case types.KindAlias:
			w.u32(strs.intern(t.Name))
			w.u32(enc.encode(t.AliasTarget))
		case types.KindSubrange:
			w.u32(enc.encode(t.SubrangeBase))
			w.i64(t.SubrangeLower)
			w.i64(t.SubrangeUpper)
		case types.KindReference, types.KindPointer:
			w.u32(enc.encode(t.Element))
		case types.KindFunctionBlock, types.KindClass, types.KindInterface:
			w.u32(strs.intern(t.Name))
		case types.KindString, types.KindWString:
			w.boolean(t.HasMaxLen)
			w.u32(uint32(t.MaxLen))
		}
	}
	return w.buf
}

// decodeTypeTable rebuilds every dynamic type into reg (normally a freshly
// created registry already holding only builtins), returning a
// typeRefDecoder that resolves every other section's wire TypeId references
// against the ids reg just assigned.
func decodeTypeTable(data []byte, reg *types.Registry, strs []string) (*typeRefDecoder, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	dec := &typeRefDecoder{decodedIds: make([]types.TypeId, 0, n)}
	resolve := func(raw uint32) (types.TypeId, error) { return dec.decode(raw) }

	for i := uint32(0); i < n; i++ {
		kindByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		kind := types.Kind(kindByte)
		var id types.TypeId
		switch kind {
		case types.KindArray:
			elemRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			dimCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			dims := make([]types.ArrayDim, dimCount)
			for j := range dims {
				lo, err := r.i64()
				if err != nil {
					return nil, err
				}
				hi, err := r.i64()
				if err != nil {
					return nil, err
				}
				dims[j] = types.ArrayDim{Lower: lo, Upper: hi}
			}
			elem, err := resolve(elemRaw)
			if err != nil {
				return nil, err
			}
			id = reg.RegisterArray(elem, dims)

		case types.KindStruct:
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			name, err := strAt(strs, nameIdx, "struct name")
			if err != nil {
				return nil, err
			}
			fieldCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			fields := make([]types.StructField, fieldCount)
			for j := range fields {
				fNameIdx, err := r.u32()
				if err != nil {
					return nil, err
				}
				fName, err := strAt(strs, fNameIdx, "field name")
				if err != nil {
					return nil, err
				}
				fTypeRaw, err := r.u32()
				if err != nil {
					return nil, err
				}
				fType, err := resolve(fTypeRaw)
				if err != nil {
					return nil, err
				}
				addr, err := r.str()
				if err != nil {
					return nil, err
				}
				fields[j] = types.StructField{Name: fName, Type: fType, Address: addr}
			}
			id = reg.RegisterStruct(name, fields)

		case types.KindUnion:
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			name, err := strAt(strs, nameIdx, "union name")
			if err != nil {
				return nil, err
			}
			variantCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			variants := make([]types.TypeId, variantCount)
			for j := range variants {
				raw, err := r.u32()
				if err != nil {
					return nil, err
				}
				variants[j], err = resolve(raw)
				if err != nil {
					return nil, err
				}
			}
			id = reg.RegisterUnion(name, variants)

		case types.KindEnum:
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			name, err := strAt(strs, nameIdx, "enum name")
			if err != nil {
				return nil, err
			}
			baseRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			base, err := resolve(baseRaw)
			if err != nil {
				return nil, err
			}
			valCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			values := make([]types.EnumValue, valCount)
			for j := range values {
				vNameIdx, err := r.u32()
				if err != nil {
					return nil, err
				}
				vName, err := strAt(strs, vNameIdx, "enum value name")
				if err != nil {
					return nil, err
				}
				v, err := r.i64()
				if err != nil {
					return nil, err
				}
				values[j] = types.EnumValue{Name: vName, Value: v}
			}
			id = reg.RegisterEnum(name, base, values)

		case types.KindAlias:
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			name, err := strAt(strs, nameIdx, "alias name")
			if err != nil {
				return nil, err
			}
			targetRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			target, err := resolve(targetRaw)
			if err != nil {
				return nil, err
			}
			id = reg.RegisterAlias(name, target)

		case types.KindSubrange:
			baseRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			base, err := resolve(baseRaw)
			if err != nil {
				return nil, err
			}
			lo, err := r.i64()
			if err != nil {
				return nil, err
			}
			hi, err := r.i64()
			if err != nil {
				return nil, err
			}
			id = reg.RegisterSubrange(base, lo, hi)

		case types.KindReference:
			targetRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			target, err := resolve(targetRaw)
			if err != nil {
				return nil, err
			}
			id = reg.RegisterReference(target)

		case types.KindPointer:
			targetRaw, err := r.u32()
			if err != nil {
				return nil, err
			}
			target, err := resolve(targetRaw)
			if err != nil {
				return nil, err
			}
			id = reg.RegisterPointer(target)

		case types.KindFunctionBlock, types.KindClass, types.KindInterface:
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			name, err := strAt(strs, nameIdx, "pou type name")
			if err != nil {
				return nil, err
			}
			switch kind {
			case types.KindFunctionBlock:
				id = reg.RegisterFunctionBlock(name)
			case types.KindClass:
				id = reg.RegisterClass(name)
			default:
				id = reg.RegisterInterface(name)
			}

		case types.KindString, types.KindWString:
			hasMaxLen, err := r.boolean()
			if err != nil {
				return nil, err
			}
			maxLen, err := r.u32()
			if err != nil {
				return nil, err
			}
			id = reg.RegisterStringWithLength(int(maxLen), hasMaxLen, kind == types.KindWString)

		default:
			return nil, errf(ErrInvalidSection, "type table entry %d: unknown kind %d", i, kindByte)
		}
		dec.decodedIds = append(dec.decodedIds, id)
	}
	return dec, nil
}
