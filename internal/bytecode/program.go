package bytecode

import (
	"sort"

	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
)

// pouEntry is one PouIndex/PouBodies slot, carrying enough to decode either
// section independent of the other's presence.
type pouEntry struct {
	kind PouKind
	name string
}

// encodeProgram serializes every POU map in prog (§4.10 PouIndex+PouBodies),
// in (kind, name) order so two encodes of the same program produce the same
// entry order regardless of Go's randomized map iteration.
func encodeProgram(prog *ir.Program, strs *stringInterner, enc *typeRefEncoder, cp *constPoolBuilder) (index, bodies []byte, err error) {
	vals := newValueCodec(enc, strs)
	pc := newPouCodec(vals, strs)

	entries := collectPouEntries(prog)

	idxW := newWriter()
	bodyW := newWriter()
	idxW.u32(uint32(len(entries)))
	bodyW.u32(uint32(len(entries)))

	for _, e := range entries {
		idxW.u8(uint8(e.kind))
		idxW.u32(strs.intern(e.name))
		bodyW.u8(uint8(e.kind))

		switch e.kind {
		case PouProgram:
			p := prog.Programs[e.name]
			if err := pc.encodeVars(idxW, p.Vars, cp); err != nil {
				return nil, nil, err
			}
			if err := pc.body.encodeStmts(bodyW, p.Body); err != nil {
				return nil, nil, err
			}

		case PouFunction:
			f := prog.Functions[e.name]
			pc.encodeParams(idxW, f.Params)
			idxW.u32(enc.encode(f.Return))
			if err := pc.encodeVars(idxW, f.Vars, cp); err != nil {
				return nil, nil, err
			}
			if err := pc.body.encodeStmts(bodyW, f.Body); err != nil {
				return nil, nil, err
			}

		case PouFunctionBlock:
			fb := prog.FBs[e.name]
			if err := pc.encodeVars(idxW, fb.Vars, cp); err != nil {
				return nil, nil, err
			}
			idxW.str(fb.Extends)
			pc.encodeStrList(idxW, fb.Implements)
			idxW.u32(uint32(len(fb.Properties)))
			for _, p := range fb.Properties {
				pc.encodeProperty(idxW, &p)
			}
			idxW.u32(uint32(len(fb.Methods)))
			for i := range fb.Methods {
				if err := pc.encodeMethodSig(idxW, &fb.Methods[i], cp); err != nil {
					return nil, nil, err
				}
			}
			if err := pc.body.encodeStmts(bodyW, fb.Body); err != nil {
				return nil, nil, err
			}
			bodyW.u32(uint32(len(fb.Methods)))
			for i := range fb.Methods {
				if err := pc.body.encodeStmts(bodyW, fb.Methods[i].Body); err != nil {
					return nil, nil, err
				}
			}

		case PouClass:
			cl := prog.Classes[e.name]
			if err := pc.encodeVars(idxW, cl.Vars, cp); err != nil {
				return nil, nil, err
			}
			idxW.str(cl.Extends)
			pc.encodeStrList(idxW, cl.Implements)
			idxW.boolean(cl.IsAbstract)
			idxW.boolean(cl.IsFinal)
			idxW.u32(uint32(len(cl.Properties)))
			for _, p := range cl.Properties {
				pc.encodeProperty(idxW, &p)
			}
			idxW.u32(uint32(len(cl.Methods)))
			for i := range cl.Methods {
				if err := pc.encodeMethodSig(idxW, &cl.Methods[i], cp); err != nil {
					return nil, nil, err
				}
			}
			bodyW.u32(uint32(len(cl.Methods)))
			for i := range cl.Methods {
				if err := pc.body.encodeStmts(bodyW, cl.Methods[i].Body); err != nil {
					return nil, nil, err
				}
			}

		case PouInterface:
			i := prog.Interfaces[e.name]
			idxW.u32(uint32(len(i.Methods)))
			for j := range i.Methods {
				pc.encodeInterfaceMethod(idxW, &i.Methods[j])
			}
			idxW.u32(uint32(len(i.Properties)))
			for j := range i.Properties {
				pc.encodeInterfaceProperty(idxW, &i.Properties[j])
			}
			pc.encodeStrList(idxW, i.Extends)
			// no PouBodies payload: interfaces declare signatures only
		}
	}

	return idxW.buf, bodyW.buf, nil
}

func collectPouEntries(prog *ir.Program) []pouEntry {
	var entries []pouEntry
	for name := range prog.Programs {
		entries = append(entries, pouEntry{PouProgram, name})
	}
	for name := range prog.Functions {
		entries = append(entries, pouEntry{PouFunction, name})
	}
	for name := range prog.FBs {
		entries = append(entries, pouEntry{PouFunctionBlock, name})
	}
	for name := range prog.Classes {
		entries = append(entries, pouEntry{PouClass, name})
	}
	for name := range prog.Interfaces {
		entries = append(entries, pouEntry{PouInterface, name})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].kind != entries[j].kind {
			return entries[i].kind < entries[j].kind
		}
		return entries[i].name < entries[j].name
	})
	return entries
}

// decodeProgram rebuilds every POU map into prog (already holding the
// decoded type registry) from the PouIndex and PouBodies section payloads.
func decodeProgram(prog *ir.Program, indexData, bodyData []byte, strs []string, typeDec *typeRefDecoder, pool []storage.Value) error {
	vals := newValueCodec(nil, nil) // encoder side unused on decode
	pc := newPouCodec(vals, nil)

	ir1 := newReader(indexData)
	ir2 := newReader(bodyData)

	n1, err := ir1.u32()
	if err != nil {
		return err
	}
	n2, err := ir2.u32()
	if err != nil {
		return err
	}
	if n1 != n2 {
		return errf(ErrInvalidSection, "PouIndex has %d entries, PouBodies has %d", n1, n2)
	}

	for i := uint32(0); i < n1; i++ {
		kindByte, err := ir1.u8()
		if err != nil {
			return err
		}
		kind := PouKind(kindByte)
		bodyKindByte, err := ir2.u8()
		if err != nil {
			return err
		}
		if PouKind(bodyKindByte) != kind && kind != PouInterface {
			return errf(ErrInvalidSection, "PouIndex/PouBodies kind mismatch at entry %d", i)
		}

		nameIdx, err := ir1.u32()
		if err != nil {
			return err
		}
		name, err := strAt(strs, nameIdx, "POU name")
		if err != nil {
			return err
		}

		switch kind {
		case PouProgram:
			p := &ir.ProgramDef{Name: name}
			if p.Vars, err = pc.decodeVars(ir1, typeDec, strs, pool); err != nil {
				return err
			}
			if p.Body, err = pc.body.decodeStmts(ir2, typeDec, strs); err != nil {
				return err
			}
			prog.Programs[name] = p

		case PouFunction:
			f := &ir.FunctionDef{Name: name}
			if f.Params, err = pc.decodeParams(ir1, typeDec, strs); err != nil {
				return err
			}
			retRaw, err := ir1.u32()
			if err != nil {
				return err
			}
			if f.Return, err = typeDec.decode(retRaw); err != nil {
				return err
			}
			if f.Vars, err = pc.decodeVars(ir1, typeDec, strs, pool); err != nil {
				return err
			}
			if f.Body, err = pc.body.decodeStmts(ir2, typeDec, strs); err != nil {
				return err
			}
			prog.Functions[name] = f

		case PouFunctionBlock:
			fb := &ir.FunctionBlockDef{Name: name}
			if fb.Vars, err = pc.decodeVars(ir1, typeDec, strs, pool); err != nil {
				return err
			}
			if fb.Extends, err = ir1.str(); err != nil {
				return err
			}
			if fb.Implements, err = pc.decodeStrList(ir1, strs); err != nil {
				return err
			}
			propCount, err := ir1.u32()
			if err != nil {
				return err
			}
			fb.Properties = make([]ir.PropertyDef, propCount)
			for j := range fb.Properties {
				if fb.Properties[j], err = pc.decodeProperty(ir1, typeDec, strs); err != nil {
					return err
				}
			}
			methodCount, err := ir1.u32()
			if err != nil {
				return err
			}
			fb.Methods = make([]ir.MethodDef, methodCount)
			for j := range fb.Methods {
				if fb.Methods[j], err = pc.decodeMethodSig(ir1, typeDec, strs, pool); err != nil {
					return err
				}
			}
			if fb.Body, err = pc.body.decodeStmts(ir2, typeDec, strs); err != nil {
				return err
			}
			bodyMethodCount, err := ir2.u32()
			if err != nil {
				return err
			}
			if bodyMethodCount != methodCount {
				return errf(ErrInvalidSection, "function block %q: method count mismatch", name)
			}
			for j := range fb.Methods {
				if fb.Methods[j].Body, err = pc.body.decodeStmts(ir2, typeDec, strs); err != nil {
					return err
				}
			}
			prog.FBs[name] = fb

		case PouClass:
			cl := &ir.ClassDef{Name: name}
			if cl.Vars, err = pc.decodeVars(ir1, typeDec, strs, pool); err != nil {
				return err
			}
			if cl.Extends, err = ir1.str(); err != nil {
				return err
			}
			if cl.Implements, err = pc.decodeStrList(ir1, strs); err != nil {
				return err
			}
			if cl.IsAbstract, err = ir1.boolean(); err != nil {
				return err
			}
			if cl.IsFinal, err = ir1.boolean(); err != nil {
				return err
			}
			propCount, err := ir1.u32()
			if err != nil {
				return err
			}
			cl.Properties = make([]ir.PropertyDef, propCount)
			for j := range cl.Properties {
				if cl.Properties[j], err = pc.decodeProperty(ir1, typeDec, strs); err != nil {
					return err
				}
			}
			methodCount, err := ir1.u32()
			if err != nil {
				return err
			}
			cl.Methods = make([]ir.MethodDef, methodCount)
			for j := range cl.Methods {
				if cl.Methods[j], err = pc.decodeMethodSig(ir1, typeDec, strs, pool); err != nil {
					return err
				}
			}
			bodyMethodCount, err := ir2.u32()
			if err != nil {
				return err
			}
			if bodyMethodCount != methodCount {
				return errf(ErrInvalidSection, "class %q: method count mismatch", name)
			}
			for j := range cl.Methods {
				if cl.Methods[j].Body, err = pc.body.decodeStmts(ir2, typeDec, strs); err != nil {
					return err
				}
			}
			prog.Classes[name] = cl

		case PouInterface:
			iface := &ir.InterfaceDef{Name: name}
			methodCount, err := ir1.u32()
			if err != nil {
				return err
			}
			iface.Methods = make([]ir.MethodSig, methodCount)
			for j := range iface.Methods {
				if iface.Methods[j], err = pc.decodeInterfaceMethod(ir1, typeDec, strs); err != nil {
					return err
				}
			}
			propCount, err := ir1.u32()
			if err != nil {
				return err
			}
			iface.Properties = make([]ir.PropertySig, propCount)
			for j := range iface.Properties {
				if iface.Properties[j], err = pc.decodeInterfaceProperty(ir1, typeDec, strs); err != nil {
					return err
				}
			}
			if iface.Extends, err = pc.decodeStrList(ir1, strs); err != nil {
				return err
			}
			prog.Interfaces[name] = iface

		default:
			return errf(ErrInvalidPouId, "unknown POU kind %d at entry %d", kindByte, i)
		}
	}
	return nil
}
