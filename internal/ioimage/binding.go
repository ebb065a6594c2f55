package ioimage

import (
	"fmt"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// Binding ties a declared IEC direct address to the storage slot backing
// it, established at configuration/lowering time from AT-bound variables
// and completed VAR_CONFIG wildcard entries (§3.4, §4.6).
type Binding struct {
	Address Address
	Ref     storage.ValueRef
	Type    types.TypeId
}

// SyncInputs copies the Input (and Memory) area into storage ahead of
// program execution, satisfying ordering guarantee (a): reads of inputs
// happen-before any program execution (§5).
func (img *Image) SyncInputs(bindings []Binding, store *storage.VariableStorage) error {
	for _, b := range bindings {
		if b.Address.Area == AreaOutput {
			continue
		}
		if err := img.syncOne(b, store, true); err != nil {
			return err
		}
	}
	return nil
}

// SyncOutputs copies storage into the Output (and Memory) area after
// program execution, satisfying ordering guarantee (b): writes to outputs
// happen-after all program execution (§5).
func (img *Image) SyncOutputs(bindings []Binding, store *storage.VariableStorage) error {
	for _, b := range bindings {
		if b.Address.Area == AreaInput {
			continue
		}
		if err := img.syncOne(b, store, false); err != nil {
			return err
		}
	}
	return nil
}

func (img *Image) syncOne(b Binding, store *storage.VariableStorage, toStorage bool) error {
	if b.Address.Size == SizeBit {
		if toStorage {
			v, err := img.ReadBit(b.Address)
			if err != nil {
				return err
			}
			return store.Assign(b.Ref, storage.Bool(b.Type, v))
		}
		slot, err := store.Resolve(b.Ref)
		if err != nil {
			return err
		}
		return img.WriteBit(b.Address, slot.B)
	}
	if toStorage {
		raw, err := img.ReadWindow(b.Address)
		if err != nil {
			return err
		}
		return store.Assign(b.Ref, storage.Int(b.Type, int64(raw)))
	}
	slot, err := store.Resolve(b.Ref)
	if err != nil {
		return err
	}
	if slot.Kind != storage.KindInt {
		return fmt.Errorf("binding %v: storage slot is not an integer/bit-string value", b.Address)
	}
	return img.WriteWindow(b.Address, uint64(slot.I))
}
