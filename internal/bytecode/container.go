package bytecode

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/types"
)

// Module is the in-memory payload a container round-trips: the lowered
// program (types, every POU, the configuration) plus the resolved I/O
// binding table a Resource needs to sync its process image (§4.10).
type Module struct {
	Program  *ir.Program
	Bindings []ioimage.Binding
}

// sectionAlign is the padding boundary between consecutive sections; a
// section's declared length is exact, the gap up to the next aligned offset
// is zero-filled (§4.10 SectionAlignment).
const sectionAlign = 8

// crcFieldOffset is the header CRC32 field's byte offset; the checksum
// covers the whole header except this field, then the rest of the file.
const crcFieldOffset = HeaderSize - 4

func alignUp(n int) int {
	rem := n % sectionAlign
	if rem == 0 {
		return n
	}
	return n + (sectionAlign - rem)
}

type rawSection struct {
	id   SectionId
	data []byte
}

// Encode serializes m into a complete container: header, section table,
// then every section's payload, with the header's CRC32 field covering
// every byte of the file except that field itself.
func Encode(m *Module) ([]byte, error) {
	strs := newStringInterner()
	enc := newTypeRefEncoder(m.Program.Types)
	vals := newValueCodec(enc, strs)
	cp := newConstPoolBuilder(vals)

	pouIndex, pouBodies, err := encodeProgram(m.Program, strs, enc, cp)
	if err != nil {
		return nil, err
	}

	refs := newRefTableBuilder(strs)
	resourceMeta := encodeResourceMeta(m.Program.Config, strs, refs)
	ioMap := encodeIoMap(m.Bindings, enc, refs)
	refTable := refs.encode()

	constPool, err := cp.encode()
	if err != nil {
		return nil, err
	}

	// TypeTable encoding only ever interns names, never new strings after
	// this point; StringTable is built last so it captures everything.
	typeTable := encodeTypeTable(m.Program.Types, enc, strs)
	stringTable := encodeStringTable(strs.list)

	sections := []rawSection{
		{SecStringTable, stringTable},
		{SecTypeTable, typeTable},
		{SecConstPool, constPool},
		{SecRefTable, refTable},
		{SecPouIndex, pouIndex},
		{SecPouBodies, pouBodies},
		{SecResourceMeta, resourceMeta},
		{SecIoMap, ioMap},
	}

	return assembleContainer(sections)
}

func assembleContainer(sections []rawSection) ([]byte, error) {
	sectionTableSize := len(sections) * SectionEntrySize
	payloadStart := HeaderSize + sectionTableSize

	type placed struct {
		entry   SectionId
		offset  int
		length  int
		payload []byte
	}
	placedSections := make([]placed, len(sections))
	cursor := alignUp(payloadStart)
	for i, s := range sections {
		placedSections[i] = placed{entry: s.id, offset: cursor, length: len(s.data), payload: s.data}
		cursor = alignUp(cursor + len(s.data))
	}
	payloadLength := cursor - payloadStart

	buf := make([]byte, 0, cursor)

	// Header, CRC field written as 0 first, patched after the rest is built.
	buf = append(buf, Magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, SupportedMajorVersion)
	buf = binary.LittleEndian.AppendUint16(buf, SupportedMinorVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(HeaderSize))
	buf = binary.LittleEndian.AppendUint32(buf, FlagCRC32)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sections)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(payloadLength))
	buf = binary.LittleEndian.AppendUint32(buf, 0)

	for _, p := range placedSections {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(p.entry))
		buf = binary.LittleEndian.AppendUint16(buf, 0) // flags, unused
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.offset))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.length))
	}

	for _, p := range placedSections {
		for len(buf) < p.offset {
			buf = append(buf, 0)
		}
		buf = append(buf, p.payload...)
	}
	for len(buf) < payloadStart+payloadLength {
		buf = append(buf, 0)
	}

	h := crc32.NewIEEE()
	h.Write(buf[:crcFieldOffset])
	h.Write(buf[crcFieldOffset+4:])
	binary.LittleEndian.PutUint32(buf[crcFieldOffset:], h.Sum32())

	return buf, nil
}

// Decode validates and parses a container back into a Module. Builtins are
// always present in a fresh types.Registry, so only dynamic types need
// reconstructing from TypeTable.
func Decode(data []byte) (*Module, error) {
	if len(data) < HeaderSize {
		return nil, errf(ErrUnexpectedEof, "container shorter than header (%d bytes)", len(data))
	}
	if string(data[0:4]) != string(Magic[:]) {
		return nil, errf(ErrInvalidMagic, "got %q", data[0:4])
	}
	major := binary.LittleEndian.Uint16(data[4:6])
	if major != SupportedMajorVersion {
		return nil, errf(ErrUnsupportedVersion, "major version %d unsupported", major)
	}
	headerSize := binary.LittleEndian.Uint16(data[8:10])
	if int(headerSize) != HeaderSize {
		return nil, errf(ErrInvalidHeader, "header size %d, expected %d", headerSize, HeaderSize)
	}
	flags := binary.LittleEndian.Uint32(data[10:14])
	sectionCount := binary.LittleEndian.Uint32(data[14:18])
	payloadLength := binary.LittleEndian.Uint32(data[18:22])
	storedCrc := binary.LittleEndian.Uint32(data[22:26])

	if flags&FlagCRC32 != 0 {
		h := crc32.NewIEEE()
		h.Write(data[:crcFieldOffset])
		h.Write(data[HeaderSize:])
		computed := h.Sum32()
		if computed != storedCrc {
			return nil, errf(ErrInvalidChecksum, "stored %08x, computed %08x", storedCrc, computed)
		}
	}

	sectionTableStart := HeaderSize
	sectionTableEnd := sectionTableStart + int(sectionCount)*SectionEntrySize
	if sectionTableEnd > len(data) {
		return nil, errf(ErrInvalidSectionTable, "section table runs past end of file")
	}

	type entry struct {
		id     SectionId
		offset uint32
		length uint32
	}
	entries := make([]entry, sectionCount)
	for i := range entries {
		base := sectionTableStart + i*SectionEntrySize
		entries[i] = entry{
			id:     SectionId(binary.LittleEndian.Uint16(data[base : base+2])),
			offset: binary.LittleEndian.Uint32(data[base+4 : base+8]),
			length: binary.LittleEndian.Uint32(data[base+8 : base+12]),
		}
	}

	payloadStart := sectionTableEnd
	payloadEnd := payloadStart + int(payloadLength)
	if payloadEnd > len(data) {
		return nil, errf(ErrSectionOutOfBounds, "payload runs past end of file")
	}

	sectionData := make(map[SectionId][]byte, len(entries))
	var bounds []struct{ lo, hi int }
	for _, e := range entries {
		lo, hi := int(e.offset), int(e.offset)+int(e.length)
		if lo < payloadStart || hi > payloadEnd {
			return nil, errf(ErrSectionOutOfBounds, "section %s at [%d,%d) outside payload [%d,%d)", e.id, lo, hi, payloadStart, payloadEnd)
		}
		if e.offset%sectionAlign != 0 {
			return nil, errf(ErrSectionAlignment, "section %s offset %d not %d-byte aligned", e.id, e.offset, sectionAlign)
		}
		for _, b := range bounds {
			if lo < b.hi && b.lo < hi {
				return nil, errf(ErrSectionOverlap, "section %s overlaps a previous section", e.id)
			}
		}
		bounds = append(bounds, struct{ lo, hi int }{lo, hi})
		sectionData[e.id] = data[lo:hi]
	}

	for _, req := range requiredSections {
		if _, ok := sectionData[req]; !ok {
			return nil, errf(ErrMissingSection, "missing required section %s", req)
		}
	}

	strs, err := decodeStringTable(sectionData[SecStringTable])
	if err != nil {
		return nil, err
	}

	reg := types.NewRegistry()
	typeDec, err := decodeTypeTable(sectionData[SecTypeTable], reg, strs)
	if err != nil {
		return nil, err
	}

	vals := newValueCodec(nil, nil)

	decodedConstPool, err := decodeConstPool(sectionData[SecConstPool], vals, typeDec, strs)
	if err != nil {
		return nil, err
	}

	refTable, err := decodeRefTable(sectionData[SecRefTable], strs)
	if err != nil {
		return nil, err
	}

	prog := ir.NewProgram(reg)
	if err := decodeProgram(prog, sectionData[SecPouIndex], sectionData[SecPouBodies], strs, typeDec, decodedConstPool); err != nil {
		return nil, err
	}

	cfg, err := decodeConfiguration(sectionData[SecResourceMeta], strs, refTable)
	if err != nil {
		return nil, err
	}
	prog.Config = cfg

	bindings, err := decodeIoMap(sectionData[SecIoMap], typeDec, refTable)
	if err != nil {
		return nil, err
	}

	return &Module{Program: prog, Bindings: bindings}, nil
}
