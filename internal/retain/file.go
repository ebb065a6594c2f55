package retain

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// snapshotMagic and snapshotVersion identify a retain snapshot file,
// independent of the bytecode container format: a retain file must stay
// diagnosable on its own even if the program that produced it is gone
// (§9 "self-describing … so schema changes can be diagnosed rather than
// silently corrupting values").
var snapshotMagic = [4]byte{'S', 'T', 'R', 'T'}

const snapshotVersion = 1

// valueTag mirrors storage.Kind but is written explicitly rather than as
// storage.Kind's raw iota, so a future reordering of Kind's constants
// cannot silently change a retain file's meaning.
type valueTag uint8

const (
	tagNull valueTag = iota
	tagBool
	tagInt
	tagReal
	tagDuration
	tagDate
	tagString
	tagArray
	tagStruct
	tagEnum
)

func tagFor(k storage.Kind) (valueTag, error) {
	switch k {
	case storage.KindNull:
		return tagNull, nil
	case storage.KindBool:
		return tagBool, nil
	case storage.KindInt:
		return tagInt, nil
	case storage.KindReal:
		return tagReal, nil
	case storage.KindDuration:
		return tagDuration, nil
	case storage.KindDate:
		return tagDate, nil
	case storage.KindString:
		return tagString, nil
	case storage.KindArray:
		return tagArray, nil
	case storage.KindStruct:
		return tagStruct, nil
	case storage.KindEnum:
		return tagEnum, nil
	default:
		return 0, fmt.Errorf("retain: kind %d is not retain-encodable", k)
	}
}

type snapWriter struct{ buf []byte }

func (w *snapWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *snapWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *snapWriter) i64(v int64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }
func (w *snapWriter) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}
func (w *snapWriter) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}
func (w *snapWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

type snapReader struct {
	buf []byte
	pos int
}

func (r *snapReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("retain: unexpected end of file at offset %d, need %d bytes", r.pos, n)
	}
	return nil
}

func (r *snapReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *snapReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *snapReader) i64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *snapReader) f64() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *snapReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *snapReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// EncodeSnapshot serializes a retain area into a self-describing snapshot:
// magic, version, entry count, then one (name, type name, tag, payload)
// record per entry in vars' iteration order.
func EncodeSnapshot(vars *storage.OrderedMap, reg *types.Registry) ([]byte, error) {
	w := &snapWriter{}
	w.buf = append(w.buf, snapshotMagic[:]...)
	w.u32(snapshotVersion)
	w.u32(uint32(vars.Len()))

	var encErr error
	vars.Each(func(name string, v storage.Value) {
		if encErr != nil {
			return
		}
		tag, err := tagFor(v.Kind)
		if err != nil {
			encErr = fmt.Errorf("retain variable %q: %w", name, err)
			return
		}
		w.str(name)
		w.str(reg.TypeName(v.Type))
		w.u8(uint8(tag))
		if err := encodeRetainValue(w, v); err != nil {
			encErr = fmt.Errorf("retain variable %q: %w", name, err)
		}
	})
	if encErr != nil {
		return nil, encErr
	}
	return w.buf, nil
}

func encodeRetainValue(w *snapWriter, v storage.Value) error {
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
		w.str(v.EnumTypeName)
		w.i64(v.EnumNumeric)
	case storage.KindArray:
		w.u32(uint32(len(v.Dims)))
		for _, d := range v.Dims {
			w.i64(d.Lower)
			w.i64(d.Upper)
		}
		w.u32(uint32(len(v.Elem)))
		for _, e := range v.Elem {
			tag, err := tagFor(e.Kind)
			if err != nil {
				return err
			}
			w.u8(uint8(tag))
			if err := encodeRetainValue(w, e); err != nil {
				return err
			}
		}
	case storage.KindStruct:
		keys := v.St.Keys()
		w.u32(uint32(len(keys)))
		for _, k := range keys {
			fv, _ := v.St.Get(k)
			w.str(k)
			tag, err := tagFor(fv.Kind)
			if err != nil {
				return err
			}
			w.u8(uint8(tag))
			if err := encodeRetainValue(w, fv); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("kind %d not retain-encodable", v.Kind)
	}
	return nil
}

// DecodeSnapshot parses a snapshot file back into an OrderedMap of values.
// A variable whose recorded type name is no longer registered decodes with
// Type left as types.Unknown rather than failing outright, so a schema
// change is surfaced to the caller (via a diagnostic, not silent
// corruption) instead of blocking every other variable's restore.
func DecodeSnapshot(data []byte, reg *types.Registry) (*storage.OrderedMap, []string, error) {
	r := &snapReader{buf: data}
	if len(data) < 4 || string(data[0:4]) != string(snapshotMagic[:]) {
		return nil, nil, fmt.Errorf("retain: bad magic, not a retain snapshot")
	}
	r.pos = 4
	version, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	if version != snapshotVersion {
		return nil, nil, fmt.Errorf("retain: unsupported snapshot version %d", version)
	}
	count, err := r.u32()
	if err != nil {
		return nil, nil, err
	}

	out := storage.NewOrderedMap()
	var warnings []string
	for i := uint32(0); i < count; i++ {
		name, err := r.str()
		if err != nil {
			return nil, nil, err
		}
		typeName, err := r.str()
		if err != nil {
			return nil, nil, err
		}
		tagByte, err := r.u8()
		if err != nil {
			return nil, nil, err
		}
		typeId, ok := reg.Lookup(typeName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("retain variable %q: type %q no longer registered, restoring with unknown type", name, typeName))
			typeId = types.Unknown
		}
		v, err := decodeRetainValue(r, valueTag(tagByte), typeId)
		if err != nil {
			return nil, nil, fmt.Errorf("retain variable %q: %w", name, err)
		}
		out.Set(name, v)
	}
	return out, warnings, nil
}

func decodeRetainValue(r *snapReader, tag valueTag, typeId types.TypeId) (storage.Value, error) {
	switch tag {
	case tagNull:
		return storage.Null(), nil
	case tagBool:
		b, err := r.boolean()
		return storage.Bool(typeId, b), err
	case tagInt:
		i, err := r.i64()
		return storage.Int(typeId, i), err
	case tagReal:
		f, err := r.f64()
		return storage.Real(typeId, f), err
	case tagDuration:
		d, err := r.i64()
		return storage.Duration(typeId, time.Duration(d)), err
	case tagDate:
		ns, err := r.i64()
		return storage.DateTime(typeId, time.Unix(0, ns).UTC()), err
	case tagString:
		s, err := r.str()
		return storage.Str(typeId, s), err
	case tagEnum:
		name, err := r.str()
		if err != nil {
			return storage.Value{}, err
		}
		n, err := r.i64()
		return storage.Enum(typeId, name, n), err
	case tagArray:
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
			elemTag, err := r.u8()
			if err != nil {
				return storage.Value{}, err
			}
			if elems[i], err = decodeRetainValue(r, valueTag(elemTag), types.Unknown); err != nil {
				return storage.Value{}, err
			}
		}
		return storage.Array(typeId, dims, elems), nil
	case tagStruct:
		fieldCount, err := r.u32()
		if err != nil {
			return storage.Value{}, err
		}
		fields := storage.NewOrderedMap()
		for i := uint32(0); i < fieldCount; i++ {
			key, err := r.str()
			if err != nil {
				return storage.Value{}, err
			}
			fieldTag, err := r.u8()
			if err != nil {
				return storage.Value{}, err
			}
			fv, err := decodeRetainValue(r, valueTag(fieldTag), types.Unknown)
			if err != nil {
				return storage.Value{}, err
			}
			fields.Set(key, fv)
		}
		return storage.Struct(typeId, fields), nil
	default:
		return storage.Value{}, fmt.Errorf("unknown retain value tag %d", tag)
	}
}
