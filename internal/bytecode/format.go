// Package bytecode implements the bytecode container codec ([K], §4.10): a
// section-table binary format that serializes a lowered ir.Program and its
// types.Registry into one relocatable blob, and decodes+validates it back.
//
// The header/section-table shape is grounded on saferwall-pe's PE reader:
// a fixed header naming a section count, followed by a section table of
// (id, flags, offset, length) entries, each pointing at a payload blob the
// reader can validate independently before trusting its contents. Exact
// section ids, header layout, and validation error set are grounded on
// original_source/crates/trust-runtime/src/bytecode/format.rs.
package bytecode

import "fmt"

// Magic is the fixed 4-byte container signature.
var Magic = [4]byte{'S', 'T', 'B', 'C'}

// HeaderSize is the fixed on-disk header size in bytes: magic(4) +
// major(2) + minor(2) + header_size(2) + flags(4) + section_count(4) +
// payload_length(4) + crc32(4).
const HeaderSize = 26

// SectionEntrySize is the fixed on-disk size of one section-table entry:
// id(2) + flags(2) + offset(4) + length(4).
const SectionEntrySize = 12

// SupportedMajorVersion is the only major version this codec decodes.
const SupportedMajorVersion = 1

// SupportedMinorVersion is the minor version this codec emits; decoding
// tolerates any minor version sharing the major version (§4.10 forward
// compatibility within a major line).
const SupportedMinorVersion = 0

// FlagCRC32 marks bit 0 of the header flags word: the header's CRC32 field
// holds a checksum over everything from the header (excluding that field)
// to the end of the payload.
const FlagCRC32 uint32 = 0x0001

// SectionId enumerates the container's section kinds (§4.10).
type SectionId uint16

const (
	SecStringTable SectionId = 0x0001
	SecTypeTable   SectionId = 0x0002
	SecConstPool   SectionId = 0x0003
	SecRefTable    SectionId = 0x0004
	SecPouIndex    SectionId = 0x0005
	SecPouBodies   SectionId = 0x0006
	SecResourceMeta SectionId = 0x0007
	SecIoMap        SectionId = 0x0008
	SecVarMeta          SectionId = 0x0009
	SecRetainInit       SectionId = 0x000A
	SecDebugStringTable SectionId = 0x000B
	SecDebugMap         SectionId = 0x000C
)

func (id SectionId) String() string {
	switch id {
	case SecStringTable:
		return "StringTable"
	case SecTypeTable:
		return "TypeTable"
	case SecConstPool:
		return "ConstPool"
	case SecRefTable:
		return "RefTable"
	case SecPouIndex:
		return "PouIndex"
	case SecPouBodies:
		return "PouBodies"
	case SecResourceMeta:
		return "ResourceMeta"
	case SecIoMap:
		return "IoMap"
	case SecVarMeta:
		return "VarMeta"
	case SecRetainInit:
		return "RetainInit"
	case SecDebugStringTable:
		return "DebugStringTable"
	case SecDebugMap:
		return "DebugMap"
	default:
		return fmt.Sprintf("Section(0x%04X)", uint16(id))
	}
}

// requiredSections must be present for a decode to succeed; the rest are
// optional (§4.10: "decoder tolerates any order but requires required
// sections present").
var requiredSections = []SectionId{
	SecStringTable, SecTypeTable, SecConstPool, SecRefTable, SecPouIndex,
	SecPouBodies, SecResourceMeta, SecIoMap,
}

// ErrKind is a closed enumeration of container validation/decode failures,
// in the same embedded-code style as diag.Code and eval.ErrKind.
type ErrKind uint8

const (
	ErrInvalidMagic ErrKind = iota
	ErrUnsupportedVersion
	ErrInvalidHeader
	ErrInvalidChecksum
	ErrInvalidSectionTable
	ErrSectionOutOfBounds
	ErrSectionOverlap
	ErrSectionAlignment
	ErrUnexpectedEof
	ErrInvalidSection
	ErrMissingSection
	ErrInvalidOpcode
	ErrInvalidJumpTarget
	ErrInvalidPouId
	ErrInvalidIndex
)

func (k ErrKind) String() string {
	switch k {
	case ErrInvalidMagic:
		return "InvalidMagic"
	case ErrUnsupportedVersion:
		return "UnsupportedVersion"
	case ErrInvalidHeader:
		return "InvalidHeader"
	case ErrInvalidChecksum:
		return "InvalidChecksum"
	case ErrInvalidSectionTable:
		return "InvalidSectionTable"
	case ErrSectionOutOfBounds:
		return "SectionOutOfBounds"
	case ErrSectionOverlap:
		return "SectionOverlap"
	case ErrSectionAlignment:
		return "SectionAlignment"
	case ErrUnexpectedEof:
		return "UnexpectedEof"
	case ErrInvalidSection:
		return "InvalidSection"
	case ErrMissingSection:
		return "MissingSection"
	case ErrInvalidOpcode:
		return "InvalidOpcode"
	case ErrInvalidJumpTarget:
		return "InvalidJumpTarget"
	case ErrInvalidPouId:
		return "InvalidPouId"
	case ErrInvalidIndex:
		return "InvalidIndex"
	default:
		return "Unknown"
	}
}

// Error is the codec's error type.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func errf(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// PouKind discriminates one PouIndex entry's POU category.
type PouKind uint8

const (
	PouProgram PouKind = iota
	PouFunctionBlock
	PouFunction
	PouClass
	PouMethod
	PouInterface
)

// RefLocation mirrors storage.Location for the wire format, kept as its own
// type so the container format does not depend on storage's internal
// iota ordering remaining stable across versions.
type RefLocation uint8

const (
	RefGlobal RefLocation = iota
	RefLocal
	RefInstance
	RefIo
	RefRetain
)
