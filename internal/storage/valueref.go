package storage

import "fmt"

// Location is a closed enumeration of the storage areas a ValueRef can name.
type Location uint8

const (
	LocGlobal Location = iota
	LocLocal
	LocInstance
	LocIo
	LocRetain
)

func (l Location) String() string {
	switch l {
	case LocGlobal:
		return "Global"
	case LocLocal:
		return "Local"
	case LocInstance:
		return "Instance"
	case LocIo:
		return "Io"
	case LocRetain:
		return "Retain"
	default:
		return "Invalid"
	}
}

// PathElemKind discriminates a ValueRef path segment.
type PathElemKind uint8

const (
	PathField PathElemKind = iota
	PathIndex
)

// PathElem is one segment of a ValueRef's descent path.
type PathElem struct {
	Kind  PathElemKind
	Field string
	Index int64
}

// Field builds a field-descent path element.
func Field(name string) PathElem { return PathElem{Kind: PathField, Field: name} }

// Index builds an index-descent path element.
func Index(i int64) PathElem { return PathElem{Kind: PathIndex, Index: i} }

// ValueRef names a slot anywhere in storage: a location, an offset
// (frame id for LocLocal, instance id for LocInstance, area-relative byte
// offset for LocIo, unused otherwise) plus a sequence of field/index
// descents from that root.
type ValueRef struct {
	Location Location
	Offset   int64
	Name     string // root variable name within the addressed container
	Path     []PathElem
}

func (r ValueRef) String() string {
	s := fmt.Sprintf("%s(%d).%s", r.Location, r.Offset, r.Name)
	for _, p := range r.Path {
		if p.Kind == PathField {
			s += "." + p.Field
		} else {
			s += fmt.Sprintf("[%d]", p.Index)
		}
	}
	return s
}

// ErrMissingSlot is returned when a ValueRef path descends a missing field
// or array index (invariant (iii), §3.3): assignment fails rather than
// silently creating slots.
type ErrMissingSlot struct {
	Ref ValueRef
}

func (e ErrMissingSlot) Error() string {
	return fmt.Sprintf("value reference %v descends a missing field or index", e.Ref)
}

// Resolve finds the storage slot a ValueRef names, descending Path from the
// root. Returns ErrMissingSlot if any descent step is absent.
func (s *VariableStorage) Resolve(ref ValueRef) (*Value, error) {
	root, err := s.resolveRoot(ref)
	if err != nil {
		return nil, err
	}
	return descend(root, ref, ref.Path)
}

func (s *VariableStorage) resolveRoot(ref ValueRef) (*Value, error) {
	switch ref.Location {
	case LocGlobal:
		if v, ok := s.Globals.GetRef(ref.Name); ok {
			return v, nil
		}
	case LocRetain:
		if v, ok := s.Retain.GetRef(ref.Name); ok {
			return v, nil
		}
	case LocLocal:
		f := s.Frame(int(ref.Offset))
		if f == nil {
			return nil, ErrMissingSlot{ref}
		}
		if v, ok := f.Variables.GetRef(ref.Name); ok {
			return v, nil
		}
	case LocInstance:
		inst, ok := s.Instances[InstanceId(ref.Offset)]
		if !ok {
			return nil, ErrMissingSlot{ref}
		}
		if v, ok := inst.Variables.GetRef(ref.Name); ok {
			return v, nil
		}
	case LocIo:
		return nil, fmt.Errorf("I/O-area value refs are resolved via the process image, not VariableStorage")
	}
	return nil, ErrMissingSlot{ref}
}

func descend(root *Value, ref ValueRef, path []PathElem) (*Value, error) {
	cur := root
	for _, p := range path {
		switch p.Kind {
		case PathField:
			if cur.Kind != KindStruct || cur.St == nil {
				return nil, ErrMissingSlot{ref}
			}
			next, ok := cur.St.GetRef(p.Field)
			if !ok {
				return nil, ErrMissingSlot{ref}
			}
			cur = next
		case PathIndex:
			if cur.Kind != KindArray || p.Index < 0 || int(p.Index) >= len(cur.Elem) {
				return nil, ErrMissingSlot{ref}
			}
			cur = &cur.Elem[p.Index]
		}
	}
	return cur, nil
}

// Assign writes v into the slot ref names, failing with ErrMissingSlot if
// the path descends a missing field/index (invariant (iii)).
func (s *VariableStorage) Assign(ref ValueRef, v Value) error {
	slot, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	*slot = v
	return nil
}
