package bytecode

import "github.com/trust-automation/trust/internal/storage"

// constPoolBuilder deduplicates the literal values backing POU variable
// initializers (ConstPool, §4.10): many variables across a program share a
// default initializer (FALSE, 0, an empty STRING), so a value is interned
// by its own encoded bytes rather than appended unconditionally.
type constPoolBuilder struct {
	vals  *valueCodec
	index map[string]uint32
	list  []storage.Value
}

func newConstPoolBuilder(vals *valueCodec) *constPoolBuilder {
	return &constPoolBuilder{vals: vals, index: make(map[string]uint32)}
}

func (b *constPoolBuilder) add(v storage.Value) (uint32, error) {
	w := newWriter()
	if err := b.vals.encode(w, v); err != nil {
		return 0, err
	}
	key := string(w.buf)
	if idx, ok := b.index[key]; ok {
		return idx, nil
	}
	idx := uint32(len(b.list))
	b.index[key] = idx
	b.list = append(b.list, v)
	return idx, nil
}

func (b *constPoolBuilder) encode() ([]byte, error) {
	w := newWriter()
	w.u32(uint32(len(b.list)))
	for _, v := range b.list {
		if err := b.vals.encode(w, v); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

// decodeConstPool decodes every pooled value up front; VarMeta/PouIndex
// entries then resolve an initializer by a plain slice index into the result.
func decodeConstPool(data []byte, vals *valueCodec, typeDec *typeRefDecoder, strs []string) ([]storage.Value, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]storage.Value, n)
	for i := range out {
		if out[i], err = vals.decode(r, typeDec, strs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func constAt(pool []storage.Value, idx uint32) (storage.Value, error) {
	if int(idx) >= len(pool) {
		return storage.Value{}, errf(ErrInvalidIndex, "const pool index %d out of range (%d entries)", idx, len(pool))
	}
	return pool[idx], nil
}
