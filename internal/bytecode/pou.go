package bytecode

import (
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
)

// pouCodec encodes every POU kind's declaration shape (PouIndex entries'
// var/param/method metadata) and body (PouBodies, via bodyCodec).
type pouCodec struct {
	vals  *valueCodec
	body  *bodyCodec
	strs  *stringInterner
}

func newPouCodec(vals *valueCodec, strs *stringInterner) *pouCodec {
	return &pouCodec{vals: vals, body: newBodyCodec(vals, strs), strs: strs}
}

// varInitTag discriminates how a VarDef's initializer was written: none, a
// ConstPool index (the common case, a literal constant), or a full inlined
// expression (a computed constant expression lower did not fold).
const (
	varInitNone uint8 = iota
	varInitPooled
	varInitInline
)

func (c *pouCodec) encodeVars(w *writer, vars []ir.VarDef, cp *constPoolBuilder) error {
	w.u32(uint32(len(vars)))
	for _, v := range vars {
		w.u32(c.strs.intern(v.Name))
		w.u32(c.vals.types.encode(v.Type))
		w.u8(uint8(v.Qualifier))
		w.str(v.Address)
		w.boolean(v.Retain)
		switch {
		case v.Initializer == nil:
			w.u8(varInitNone)
		case v.Initializer.Kind == ir.ExprLiteral:
			idx, err := cp.add(v.Initializer.Lit)
			if err != nil {
				return err
			}
			w.u8(varInitPooled)
			w.u32(idx)
		default:
			w.u8(varInitInline)
			if err := c.body.encodeExpr(w, v.Initializer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *pouCodec) decodeVars(r *reader, typeDec *typeRefDecoder, strs []string, pool []storage.Value) ([]ir.VarDef, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ir.VarDef, n)
	for i := range out {
		nameIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		name, err := strAt(strs, nameIdx, "variable name")
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
		qual, err := r.u8()
		if err != nil {
			return nil, err
		}
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		retain, err := r.boolean()
		if err != nil {
			return nil, err
		}
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		var init *ir.Expr
		switch tag {
		case varInitNone:
		case varInitPooled:
			idx, err := r.u32()
			if err != nil {
				return nil, err
			}
			v, err := constAt(pool, idx)
			if err != nil {
				return nil, err
			}
			init = &ir.Expr{Kind: ir.ExprLiteral, Type: v.Type, Lit: v}
		case varInitInline:
			if init, err = c.body.decodeExpr(r, typeDec, strs); err != nil {
				return nil, err
			}
		default:
			return nil, errf(ErrInvalidSection, "variable %q: unknown initializer tag %d", name, tag)
		}
		out[i] = ir.VarDef{
			Name: name, Type: typ, Initializer: init,
			Qualifier: symbols.VarQualifier(qual), Address: addr, Retain: retain,
		}
	}
	return out, nil
}

func (c *pouCodec) encodeParams(w *writer, params []ir.ParamDef) {
	w.u32(uint32(len(params)))
	for _, p := range params {
		w.u32(c.strs.intern(p.Name))
		w.u32(c.vals.types.encode(p.Type))
		w.u8(uint8(p.Direction))
	}
}

func (c *pouCodec) decodeParams(r *reader, typeDec *typeRefDecoder, strs []string) ([]ir.ParamDef, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ir.ParamDef, n)
	for i := range out {
		nameIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		name, err := strAt(strs, nameIdx, "parameter name")
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
		dir, err := r.u8()
		if err != nil {
			return nil, err
		}
		out[i] = ir.ParamDef{Name: name, Type: typ, Direction: symbols.ParamDirection(dir)}
	}
	return out, nil
}

// encodeMethodSig writes everything about a method except its body: PouIndex
// carries declarations, PouBodies carries the parallel, index-aligned list
// of method bodies (§4.10: the two sections let a debugger load signatures
// without paying for every body).
func (c *pouCodec) encodeMethodSig(w *writer, m *ir.MethodDef, cp *constPoolBuilder) error {
	w.u32(c.strs.intern(m.Name))
	c.encodeParams(w, m.Params)
	w.u32(c.vals.types.encode(m.Return))
	if err := c.encodeVars(w, m.Vars, cp); err != nil {
		return err
	}
	w.u8(uint8(m.Visibility))
	w.u32(uint32(m.VTableSlot))
	w.boolean(m.IsOverride)
	w.boolean(m.IsAbstract)
	w.boolean(m.IsFinal)
	w.boolean(m.IsStatic)
	return nil
}

func (c *pouCodec) decodeMethodSig(r *reader, typeDec *typeRefDecoder, strs []string, pool []storage.Value) (ir.MethodDef, error) {
	var m ir.MethodDef
	nameIdx, err := r.u32()
	if err != nil {
		return m, err
	}
	if m.Name, err = strAt(strs, nameIdx, "method name"); err != nil {
		return m, err
	}
	if m.Params, err = c.decodeParams(r, typeDec, strs); err != nil {
		return m, err
	}
	retRaw, err := r.u32()
	if err != nil {
		return m, err
	}
	if m.Return, err = typeDec.decode(retRaw); err != nil {
		return m, err
	}
	if m.Vars, err = c.decodeVars(r, typeDec, strs, pool); err != nil {
		return m, err
	}
	vis, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Visibility = symbols.Visibility(vis)
	slot, err := r.u32()
	if err != nil {
		return m, err
	}
	m.VTableSlot = int(slot)
	if m.IsOverride, err = r.boolean(); err != nil {
		return m, err
	}
	if m.IsAbstract, err = r.boolean(); err != nil {
		return m, err
	}
	if m.IsFinal, err = r.boolean(); err != nil {
		return m, err
	}
	if m.IsStatic, err = r.boolean(); err != nil {
		return m, err
	}
	return m, nil
}

func (c *pouCodec) encodeProperty(w *writer, p *ir.PropertyDef) {
	w.u32(c.strs.intern(p.Name))
	w.u32(c.vals.types.encode(p.Type))
	w.boolean(p.HasGet)
	w.boolean(p.HasSet)
	w.u8(uint8(p.Visibility))
}

func (c *pouCodec) decodeProperty(r *reader, typeDec *typeRefDecoder, strs []string) (ir.PropertyDef, error) {
	var p ir.PropertyDef
	nameIdx, err := r.u32()
	if err != nil {
		return p, err
	}
	if p.Name, err = strAt(strs, nameIdx, "property name"); err != nil {
		return p, err
	}
	typeRaw, err := r.u32()
	if err != nil {
		return p, err
	}
	if p.Type, err = typeDec.decode(typeRaw); err != nil {
		return p, err
	}
	if p.HasGet, err = r.boolean(); err != nil {
		return p, err
	}
	if p.HasSet, err = r.boolean(); err != nil {
		return p, err
	}
	vis, err := r.u8()
	if err != nil {
		return p, err
	}
	p.Visibility = symbols.Visibility(vis)
	return p, nil
}

func (c *pouCodec) encodeInterfaceMethod(w *writer, m *ir.MethodSig) {
	w.u32(c.strs.intern(m.Name))
	c.encodeParams(w, m.Params)
	w.u32(c.vals.types.encode(m.Return))
}

func (c *pouCodec) decodeInterfaceMethod(r *reader, typeDec *typeRefDecoder, strs []string) (ir.MethodSig, error) {
	var m ir.MethodSig
	nameIdx, err := r.u32()
	if err != nil {
		return m, err
	}
	if m.Name, err = strAt(strs, nameIdx, "interface method name"); err != nil {
		return m, err
	}
	if m.Params, err = c.decodeParams(r, typeDec, strs); err != nil {
		return m, err
	}
	retRaw, err := r.u32()
	if err != nil {
		return m, err
	}
	if m.Return, err = typeDec.decode(retRaw); err != nil {
		return m, err
	}
	return m, nil
}

func (c *pouCodec) encodeInterfaceProperty(w *writer, p *ir.PropertySig) {
	w.u32(c.strs.intern(p.Name))
	w.u32(c.vals.types.encode(p.Type))
	w.boolean(p.HasGet)
	w.boolean(p.HasSet)
}

func (c *pouCodec) decodeInterfaceProperty(r *reader, typeDec *typeRefDecoder, strs []string) (ir.PropertySig, error) {
	var p ir.PropertySig
	nameIdx, err := r.u32()
	if err != nil {
		return p, err
	}
	if p.Name, err = strAt(strs, nameIdx, "interface property name"); err != nil {
		return p, err
	}
	typeRaw, err := r.u32()
	if err != nil {
		return p, err
	}
	if p.Type, err = typeDec.decode(typeRaw); err != nil {
		return p, err
	}
	if p.HasGet, err = r.boolean(); err != nil {
		return p, err
	}
	if p.HasSet, err = r.boolean(); err != nil {
		return p, err
	}
	return p, nil
}

func (c *pouCodec) encodeStrList(w *writer, list []string) {
	w.u32(uint32(len(list)))
	for _, s := range list {
		w.u32(c.strs.intern(s))
	}
}

func (c *pouCodec) decodeStrList(r *reader, strs []string) ([]string, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if out[i], err = strAt(strs, idx, "name list"); err != nil {
			return nil, err
		}
	}
	return out, nil
}
