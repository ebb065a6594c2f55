package bytecode

// stringInterner collects strings in first-seen order and hands out stable
// u32 indices — the StringTable section's dedup discipline (§4.10:
// "StringTable deduplicates ... strings; references are u32 indices").
type stringInterner struct {
	index map[string]uint32
	list  []string
}

func newStringInterner() *stringInterner {
	return &stringInterner{index: make(map[string]uint32)}
}

func (si *stringInterner) intern(s string) uint32 {
	if idx, ok := si.index[s]; ok {
		return idx
	}
	idx := uint32(len(si.list))
	si.list = append(si.list, s)
	si.index[s] = idx
	return idx
}

func encodeStringTable(list []string) []byte {
	w := newWriter()
	w.u32(uint32(len(list)))
	for _, s := range list {
		w.str(s)
	}
	return w.buf
}

func decodeStringTable(data []byte) ([]string, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// strAt bounds-checks a string-table index, returning ErrInvalidIndex
// rather than panicking on a corrupt container.
func strAt(table []string, idx uint32, kind string) (string, error) {
	if int(idx) >= len(table) {
		return "", errf(ErrInvalidIndex, "%s string index %d out of range (%d strings)", kind, idx, len(table))
	}
	return table[idx], nil
}
