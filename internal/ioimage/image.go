package ioimage

import (
	"encoding/binary"
	"fmt"
)

// Image holds the three byte-addressable process-image areas for one
// resource, sized at configuration time.
type Image struct {
	Input  []byte
	Output []byte
	Memory []byte
}

// NewImage allocates an Image with the given area sizes in bytes.
func NewImage(inputSize, outputSize, memorySize int) *Image {
	return &Image{
		Input:  make([]byte, inputSize),
		Output: make([]byte, outputSize),
		Memory: make([]byte, memorySize),
	}
}

func (img *Image) areaBuf(a Area) []byte {
	switch a {
	case AreaInput:
		return img.Input
	case AreaOutput:
		return img.Output
	default:
		return img.Memory
	}
}

func byteOffset(addr Address) (int, error) {
	if len(addr.Path) == 0 {
		return 0, fmt.Errorf("address %v has no byte path", addr)
	}
	// Path is a dotted hierarchical offset; the core model flattens it to a
	// single byte offset using the first path segment directly (no nested
	// module/rack/slot decomposition is modeled at this layer — drivers that
	// need multi-level decomposition interpret Path themselves via Params).
	off := int(addr.Path[0])
	if addr.Size == SizeBit {
		return off, nil
	}
	return off, nil
}

// ReadBit reads a single bit from the addressed area.
func (img *Image) ReadBit(addr Address) (bool, error) {
	buf := img.areaBuf(addr.Area)
	off, err := byteOffset(addr)
	if err != nil {
		return false, err
	}
	if off < 0 || off >= len(buf) {
		return false, fmt.Errorf("bit address %v out of range (area size %d)", addr, len(buf))
	}
	return buf[off]&(1<<addr.Bit) != 0, nil
}

// WriteBit writes a single bit into the addressed area.
func (img *Image) WriteBit(addr Address, v bool) error {
	buf := img.areaBuf(addr.Area)
	off, err := byteOffset(addr)
	if err != nil {
		return err
	}
	if off < 0 || off >= len(buf) {
		return fmt.Errorf("bit address %v out of range (area size %d)", addr, len(buf))
	}
	if v {
		buf[off] |= 1 << addr.Bit
	} else {
		buf[off] &^= 1 << addr.Bit
	}
	return nil
}

// ReadWindow reads a byte/word/dword/lword window as a little-endian uint64
// (narrower windows occupy the low bits).
func (img *Image) ReadWindow(addr Address) (uint64, error) {
	buf := img.areaBuf(addr.Area)
	off, err := byteOffset(addr)
	if err != nil {
		return 0, err
	}
	n := addr.Size.Bytes()
	if n == 0 {
		return 0, fmt.Errorf("address %v is not a byte-aligned window", addr)
	}
	if off < 0 || off+n > len(buf) {
		return 0, fmt.Errorf("window address %v out of range (area size %d)", addr, len(buf))
	}
	window := buf[off : off+n]
	switch n {
	case 1:
		return uint64(window[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(window)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(window)), nil
	default:
		return binary.LittleEndian.Uint64(window), nil
	}
}

// WriteWindow writes a byte/word/dword/lword window.
func (img *Image) WriteWindow(addr Address, v uint64) error {
	buf := img.areaBuf(addr.Area)
	off, err := byteOffset(addr)
	if err != nil {
		return err
	}
	n := addr.Size.Bytes()
	if n == 0 {
		return fmt.Errorf("address %v is not a byte-aligned window", addr)
	}
	if off < 0 || off+n > len(buf) {
		return fmt.Errorf("window address %v out of range (area size %d)", addr, len(buf))
	}
	window := buf[off : off+n]
	switch n {
	case 1:
		window[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(window, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(window, uint32(v))
	default:
		binary.LittleEndian.PutUint64(window, v)
	}
	return nil
}

// SafeStateEntry binds one output address to a literal value applied on
// fault or cold start (§4.9, §6.2).
type SafeStateEntry struct {
	Address Address
	Value   uint64 // for SizeBit, 0 or 1
}

// ApplySafeState writes every configured safe-state entry to the output
// buffer, as required before any user program observes it.
func (img *Image) ApplySafeState(entries []SafeStateEntry) error {
	for _, e := range entries {
		if e.Address.Area != AreaOutput {
			return fmt.Errorf("safe_state entry %v must address the output area", e.Address)
		}
		if e.Address.Size == SizeBit {
			if err := img.WriteBit(e.Address, e.Value != 0); err != nil {
				return err
			}
			continue
		}
		if err := img.WriteWindow(e.Address, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Driver abstracts a cycle-edge I/O transport: a blocking read of the input
// area at cycle start, and a write of the output area at cycle end.
// Implementations are required to be re-entrant only between cycles (§5).
type Driver interface {
	ReadInputs(buf []byte) error
	WriteOutputs(buf []byte) error
}

// RunCycleIO performs the read-inputs / (caller runs scheduler) / write-
// outputs ordering spec.md §4.9 requires, around a caller-supplied cycle
// function.
func (img *Image) RunCycleIO(drv Driver, cycle func() error) error {
	if drv != nil {
		if err := drv.ReadInputs(img.Input); err != nil {
			return fmt.Errorf("I/O driver read error: %w", err)
		}
	}
	if err := cycle(); err != nil {
		return err
	}
	if drv != nil {
		if err := drv.WriteOutputs(img.Output); err != nil {
			return fmt.Errorf("I/O driver write error: %w", err)
		}
	}
	return nil
}
