package bytecode

import "github.com/trust-automation/trust/internal/storage"

// refTableBuilder collects storage.ValueRef values (§4.10 RefTable), used by
// anything that names a slot by structural address rather than by value: a
// TASK's WITH-bound FB instances, and a CONFIGURATION's VAR_ACCESS bindings.
// No dedup: two distinct bindings that happen to name the same ref are still
// two distinct wire entries, matching how Access and TaskConfig keep their
// own ValueRef slices today.
type refTableBuilder struct {
	strs *stringInterner
	list []storage.ValueRef
}

func newRefTableBuilder(strs *stringInterner) *refTableBuilder {
	return &refTableBuilder{strs: strs}
}

func (b *refTableBuilder) add(ref storage.ValueRef) uint32 {
	idx := uint32(len(b.list))
	b.list = append(b.list, ref)
	return idx
}

func (b *refTableBuilder) encode() []byte {
	w := newWriter()
	w.u32(uint32(len(b.list)))
	for _, ref := range b.list {
		encodeValueRef(w, b.strs, ref)
	}
	return w.buf
}

func encodeValueRef(w *writer, strs *stringInterner, ref storage.ValueRef) {
	w.u8(uint8(ref.Location))
	w.i64(ref.Offset)
	w.u32(strs.intern(ref.Name))
	w.u32(uint32(len(ref.Path)))
	for _, p := range ref.Path {
		w.u8(uint8(p.Kind))
		if p.Kind == storage.PathField {
			w.u32(strs.intern(p.Field))
		} else {
			w.i64(p.Index)
		}
	}
}

func decodeValueRef(r *reader, strs []string) (storage.ValueRef, error) {
	var ref storage.ValueRef
	locByte, err := r.u8()
	if err != nil {
		return ref, err
	}
	ref.Location = storage.Location(locByte)
	if ref.Offset, err = r.i64(); err != nil {
		return ref, err
	}
	nameIdx, err := r.u32()
	if err != nil {
		return ref, err
	}
	if ref.Name, err = strAt(strs, nameIdx, "value ref root name"); err != nil {
		return ref, err
	}
	n, err := r.u32()
	if err != nil {
		return ref, err
	}
	ref.Path = make([]storage.PathElem, n)
	for i := range ref.Path {
		kindByte, err := r.u8()
		if err != nil {
			return ref, err
		}
		kind := storage.PathElemKind(kindByte)
		if kind == storage.PathField {
			fieldIdx, err := r.u32()
			if err != nil {
				return ref, err
			}
			field, err := strAt(strs, fieldIdx, "value ref path field")
			if err != nil {
				return ref, err
			}
			ref.Path[i] = storage.Field(field)
		} else {
			idx, err := r.i64()
			if err != nil {
				return ref, err
			}
			ref.Path[i] = storage.Index(idx)
		}
	}
	return ref, nil
}

func decodeRefTable(data []byte, strs []string) ([]storage.ValueRef, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]storage.ValueRef, n)
	for i := range out {
		if out[i], err = decodeValueRef(r, strs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func refAt(refs []storage.ValueRef, idx uint32) (storage.ValueRef, error) {
	if int(idx) >= len(refs) {
		return storage.ValueRef{}, errf(ErrInvalidIndex, "ref table index %d out of range (%d refs)", idx, len(refs))
	}
	return refs[idx], nil
}
