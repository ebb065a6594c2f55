package bytecode

import (
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/storage"
)

// encodeIoMap serializes the resolved AT-binding table (§4.10 IoMap): one
// entry per declared direct-address variable, pairing its IEC address with
// the RefTable index of the storage slot it syncs against.
func encodeIoMap(bindings []ioimage.Binding, enc *typeRefEncoder, refs *refTableBuilder) []byte {
	w := newWriter()
	w.u32(uint32(len(bindings)))
	for _, b := range bindings {
		w.str(b.Address.String())
		w.u32(refs.add(b.Ref))
		w.u32(enc.encode(b.Type))
	}
	return w.buf
}

func decodeIoMap(data []byte, typeDec *typeRefDecoder, refs []storage.ValueRef) ([]ioimage.Binding, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ioimage.Binding, n)
	for i := range out {
		addrStr, err := r.str()
		if err != nil {
			return nil, err
		}
		addr, parseErr := ioimage.ParseAddress(addrStr)
		if parseErr != nil {
			return nil, errf(ErrInvalidSection, "io map entry %d: %v", i, parseErr)
		}
		refIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		ref, err := refAt(refs, refIdx)
		if err != nil {
			return nil, err
		}
		typeRaw, err := r.u32()
		if err != nil {
			return nil, err
		}
		typ, err := typeDec.decode(typeRaw)
		if err != nil {
			return nil, err
		}
		out[i] = ioimage.Binding{Address: addr, Ref: ref, Type: typ}
	}
	return out, nil
}
