package bytecode

import (
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
)

// encodeResourceMeta serializes the lowered CONFIGURATION (§4.10
// ResourceMeta): resource I/O sizes, task wiring, program-instance bindings,
// VAR_ACCESS, and VAR_CONFIG. FB-instance and access ValueRefs are written
// as RefTable indices via refs, not inlined; refs does not deduplicate, so
// every binding gets its own RefTable entry.
func encodeResourceMeta(cfg *ir.ConfigurationDef, strs *stringInterner, refs *refTableBuilder) []byte {
	w := newWriter()
	if cfg == nil {
		w.boolean(false)
		return w.buf
	}
	w.boolean(true)
	w.u32(strs.intern(cfg.Name))

	w.u32(uint32(len(cfg.Resources)))
	for _, res := range cfg.Resources {
		w.u32(strs.intern(res.Name))
		w.u32(uint32(res.InputSize))
		w.u32(uint32(res.OutputSize))
		w.u32(uint32(res.MemorySize))

		w.u32(uint32(len(res.Tasks)))
		for _, t := range res.Tasks {
			w.u32(strs.intern(t.Name))
			w.i64(int64(t.Interval))
			w.u32(strs.intern(t.Single))
			w.u32(uint32(t.Priority))
			w.u32(uint32(len(t.Programs)))
			for _, p := range t.Programs {
				w.u32(strs.intern(p))
			}
			w.u32(uint32(len(t.FbInstances)))
			for _, ref := range t.FbInstances {
				w.u32(refs.add(ref))
			}
		}

		w.u32(uint32(len(res.ProgramAssigns)))
		for _, pa := range res.ProgramAssigns {
			w.u32(strs.intern(pa.ProgramName))
			w.u32(strs.intern(pa.InstanceName))
			w.u32(strs.intern(pa.TaskName))
		}
	}

	w.u32(uint32(len(cfg.Access)))
	for _, a := range cfg.Access {
		w.u32(strs.intern(a.Name))
		w.u32(refs.add(a.Ref))
	}

	w.u32(uint32(len(cfg.VarConfig)))
	for _, vc := range cfg.VarConfig {
		w.str(vc.Path)
		w.str(vc.Address.String())
	}
	return w.buf
}

// decodeConfiguration rebuilds a ConfigurationDef from a decoded
// ResourceMeta payload and the container's already-decoded RefTable.
func decodeConfiguration(data []byte, strs []string, refs []storage.ValueRef) (*ir.ConfigurationDef, error) {
	r := newReader(data)
	present, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	cfg := &ir.ConfigurationDef{}
	nameIdx, err := r.u32()
	if err != nil {
		return nil, err
	}
	if cfg.Name, err = strAt(strs, nameIdx, "configuration name"); err != nil {
		return nil, err
	}

	resCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	cfg.Resources = make([]ir.ResourceDef, resCount)
	for ri := range cfg.Resources {
		res := &cfg.Resources[ri]
		nameIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if res.Name, err = strAt(strs, nameIdx, "resource name"); err != nil {
			return nil, err
		}
		in, err := r.u32()
		if err != nil {
			return nil, err
		}
		res.InputSize = int(in)
		out, err := r.u32()
		if err != nil {
			return nil, err
		}
		res.OutputSize = int(out)
		mem, err := r.u32()
		if err != nil {
			return nil, err
		}
		res.MemorySize = int(mem)

		taskCount, err := r.u32()
		if err != nil {
			return nil, err
		}
		res.Tasks = make([]ir.TaskConfig, taskCount)
		for ti := range res.Tasks {
			t := &res.Tasks[ti]
			nameIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			if t.Name, err = strAt(strs, nameIdx, "task name"); err != nil {
				return nil, err
			}
			intervalNs, err := r.i64()
			if err != nil {
				return nil, err
			}
			t.Interval = time.Duration(intervalNs)
			singleIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			if t.Single, err = strAt(strs, singleIdx, "task single trigger"); err != nil {
				return nil, err
			}
			prio, err := r.u32()
			if err != nil {
				return nil, err
			}
			t.Priority = int(prio)

			progCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			t.Programs = make([]string, progCount)
			for pi := range t.Programs {
				idx, err := r.u32()
				if err != nil {
					return nil, err
				}
				if t.Programs[pi], err = strAt(strs, idx, "task program name"); err != nil {
					return nil, err
				}
			}

			fbCount, err := r.u32()
			if err != nil {
				return nil, err
			}
			for fi := uint32(0); fi < fbCount; fi++ {
				refIdx, err := r.u32()
				if err != nil {
					return nil, err
				}
				ref, err := refAt(refs, refIdx)
				if err != nil {
					return nil, err
				}
				t.FbInstances = append(t.FbInstances, ref)
			}
		}

		paCount, err := r.u32()
		if err != nil {
			return nil, err
		}
		res.ProgramAssigns = make([]ir.ProgramAssignment, paCount)
		for pi := range res.ProgramAssigns {
			pa := &res.ProgramAssigns[pi]
			progIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			if pa.ProgramName, err = strAt(strs, progIdx, "program assignment program name"); err != nil {
				return nil, err
			}
			instIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			if pa.InstanceName, err = strAt(strs, instIdx, "program assignment instance name"); err != nil {
				return nil, err
			}
			taskIdx, err := r.u32()
			if err != nil {
				return nil, err
			}
			if pa.TaskName, err = strAt(strs, taskIdx, "program assignment task name"); err != nil {
				return nil, err
			}
		}
	}

	accessCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	cfg.Access = make([]ir.AccessBinding, accessCount)
	for i := range cfg.Access {
		nameIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if cfg.Access[i].Name, err = strAt(strs, nameIdx, "access binding name"); err != nil {
			return nil, err
		}
		refIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if cfg.Access[i].Ref, err = refAt(refs, refIdx); err != nil {
			return nil, err
		}
	}

	varConfigCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	cfg.VarConfig = make([]ir.VarConfigEntry, varConfigCount)
	for i := range cfg.VarConfig {
		path, err := r.str()
		if err != nil {
			return nil, err
		}
		addrStr, err := r.str()
		if err != nil {
			return nil, err
		}
		addr, parseErr := ioimage.ParseAddress(addrStr)
		if parseErr != nil {
			return nil, errf(ErrInvalidSection, "var config entry %d: %v", i, parseErr)
		}
		cfg.VarConfig[i] = ir.VarConfigEntry{Path: path, Address: addr}
	}

	return cfg, nil
}
