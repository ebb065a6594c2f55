package bytecode

import "github.com/trust-automation/trust/internal/types"

// dynamicTypeRefFlag marks a wire TypeId reference as a TypeTable index
// rather than a raw builtin constant (see typeRefEncoder).
const dynamicTypeRefFlag = uint32(1) << 31

// typeRefEncoder translates between the registry TypeId space used while a
// program is loaded and the container's wire TypeId space: builtin ids are
// the same Go constants in any process running this binary (spec §3.1
// invariant (a)), so they are written raw; dynamic (user) ids are written as
// an index into the TypeTable section, in types.Registry.DynamicIds order.
type typeRefEncoder struct {
	index map[types.TypeId]uint32
}

func newTypeRefEncoder(reg *types.Registry) *typeRefEncoder {
	ids := reg.DynamicIds()
	idx := make(map[types.TypeId]uint32, len(ids))
	for i, id := range ids {
		idx[id] = uint32(i)
	}
	return &typeRefEncoder{index: idx}
}

func (e *typeRefEncoder) encode(id types.TypeId) uint32 {
	if idx, ok := e.index[id]; ok {
		return idx | dynamicTypeRefFlag
	}
	return uint32(id)
}

// typeRefDecoder resolves wire TypeId references back to the ids a fresh
// Registry assigned on decode. decodedIds is filled positionally, one entry
// per TypeTable entry, in the same order the encoder walked DynamicIds.
type typeRefDecoder struct {
	decodedIds []types.TypeId
}

func (d *typeRefDecoder) decode(raw uint32) (types.TypeId, error) {
	if raw&dynamicTypeRefFlag != 0 {
		idx := raw &^ dynamicTypeRefFlag
		if int(idx) >= len(d.decodedIds) {
			return 0, errf(ErrInvalidIndex, "type table index %d out of range (%d types)", idx, len(d.decodedIds))
		}
		return d.decodedIds[idx], nil
	}
	return types.TypeId(raw), nil
}
