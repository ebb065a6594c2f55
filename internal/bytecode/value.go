package bytecode

import (
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// valueCodec encodes/decodes storage.Value trees, used by the ConstPool and
// RetainInit sections. Composite kinds (Array/Struct) recurse; Instance and
// Reference values never appear in constant or retain-initializer position
// (§4.10: "the encoder rejects a Value whose kind is Instance or Reference
// in ConstPool/RetainInit — neither is constant-foldable or a storable
// at-rest snapshot") so encodeValue errors rather than silently dropping one.
type valueCodec struct {
	types *typeRefEncoder
	strs  *stringInterner
}

func newValueCodec(types *typeRefEncoder, strs *stringInterner) *valueCodec {
	return &valueCodec{types: types, strs: strs}
}

func (c *valueCodec) encode(w *writer, v storage.Value) error {
	w.u8(uint8(v.Kind))
	w.u32(c.types.encode(v.Type))
	switch v.Kind {
	case storage.KindNull:
	case storage.KindBool:
		w.boolean(v.B)
	case storage.KindInt:
		w.i64(v.I)
	case storage.KindReal:
		w.f64(v.F)
	case storage.KindDuration:
		w.i64(int64(v.Dur))
	case storage.KindDate:
		w.i64(v.T.UnixNano())
	case storage.KindString:
		w.str(v.S)
	case storage.KindEnum:
		w.u32(c.strs.intern(v.EnumTypeName))
		w.i64(v.EnumNumeric)
	case storage.KindArray:
		w.u32(uint32(len(v.Dims)))
		for _, d := range v.Dims {
			w.i64(d.Lower)
			w.i64(d.Upper)
		}
		w.u32(uint32(len(v.Elem)))
		for _, e := range v.Elem {
			if err := c.encode(w, e); err != nil {
				return err
			}
		}
	case storage.KindStruct:
		keys := v.St.Keys()
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			w.u32(c.strs.intern(k))
			fv, _ := v.St.Get(k)
			if err := c.encode(w, fv); err != nil {
				return err
			}
		}
	default:
		return errf(ErrInvalidSection, "value of kind %d is not constant-encodable", v.Kind)
	}
	return nil
}

func (c *valueCodec) decode(r *reader, typeDec *typeRefDecoder, strs []string) (storage.Value, error) {
	kindByte, err := r.u8()
	if err != nil {
		return storage.Value{}, err
	}
	kind := storage.Kind(kindByte)
	typeRaw, err := r.u32()
	if err != nil {
		return storage.Value{}, err
	}
	typ, err := typeDec.decode(typeRaw)
	if err != nil {
		return storage.Value{}, err
	}

	switch kind {
	case storage.KindNull:
		return storage.Null(), nil
	case storage.KindBool:
		b, err := r.boolean()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Bool(typ, b), nil
	case storage.KindInt:
		i, err := r.i64()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Int(typ, i), nil
	case storage.KindReal:
		f, err := r.f64()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Real(typ, f), nil
	case storage.KindDuration:
		d, err := r.i64()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Duration(typ, time.Duration(d)), nil
	case storage.KindDate:
		ns, err := r.i64()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.DateTime(typ, time.Unix(0, ns).UTC()), nil
	case storage.KindString:
		s, err := r.str()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Str(typ, s), nil
	case storage.KindEnum:
		nameIdx, err := r.u32()
		if err != nil {
			return storage.Value{}, err
		}
		name, err := strAt(strs, nameIdx, "enum type name")
		if err != nil {
			return storage.Value{}, err
		}
		n, err := r.i64()
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Enum(typ, name, n), nil
	case storage.KindArray:
		dimCount, err := r.u32()
		if err != nil {
			return storage.Value{}, err
		}
		dims := make([]types.ArrayDim, dimCount)
		for i := range dims {
			lo, err := r.i64()
			if err != nil {
				return storage.Value{}, err
			}
			hi, err := r.i64()
			if err != nil {
				return storage.Value{}, err
			}
			dims[i] = types.ArrayDim{Lower: lo, Upper: hi}
		}
		elemCount, err := r.u32()
		if err != nil {
			return storage.Value{}, err
		}
		elems := make([]storage.Value, elemCount)
		for i := range elems {
			elems[i], err = c.decode(r, typeDec, strs)
			if err != nil {
				return storage.Value{}, err
			}
		}
		return storage.Array(typ, dims, elems), nil
	case storage.KindStruct:
		fieldCount, err := r.u32()
		if err != nil {
			return storage.Value{}, err
		}
		fields := storage.NewOrderedMap()
		for i := uint32(0); i < fieldCount; i++ {
			nameIdx, err := r.u32()
			if err != nil {
				return storage.Value{}, err
			}
			name, err := strAt(strs, nameIdx, "struct field name")
			if err != nil {
				return storage.Value{}, err
			}
			fv, err := c.decode(r, typeDec, strs)
			if err != nil {
				return storage.Value{}, err
			}
			fields.Set(name, fv)
		}
		return storage.Struct(typ, fields), nil
	default:
		return storage.Value{}, errf(ErrInvalidSection, "unknown value kind %d", kindByte)
	}
}
