package bytecode

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// MappedModule is a Module decoded from a memory-mapped .stbc file. Closing
// it unmaps the backing pages; the decoded Module itself holds no references
// into the mapping (every section codec copies strings/values out), so it
// stays valid after Close.
type MappedModule struct {
	*Module

	f    *os.File
	data mmap.MMap
}

// LoadMapped memory-maps path read-only and decodes the container directly
// from the mapping, avoiding a full read of large bytecode files into a
// separate heap buffer.
func LoadMapped(path string) (*MappedModule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	m, err := Decode(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}

	return &MappedModule{Module: m, f: f, data: data}, nil
}

// Close unmaps the file and releases the underlying file descriptor.
func (mm *MappedModule) Close() error {
	if err := mm.data.Unmap(); err != nil {
		mm.f.Close()
		return err
	}
	return mm.f.Close()
}
