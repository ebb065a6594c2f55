package rtconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/trust-automation/trust/internal/ioimage"
)

// IoConfig is the validated contents of io.toml: driver selection, its
// opaque parameter table, and the safe-state outputs applied on fault or
// cold start.
type IoConfig struct {
	Driver    string
	Params    map[string]interface{}
	SafeState []ioimage.SafeStateEntry
}

type ioToml struct {
	Io ioSection `toml:"io"`
}

type ioSection struct {
	Driver    string                 `toml:"driver"`
	Params    map[string]interface{} `toml:"params"`
	SafeState []ioSafeEntry          `toml:"safe_state"`
}

type ioSafeEntry struct {
	Address string `toml:"address"`
	Value   string `toml:"value"`
}

// LoadIoConfig reads and validates io.toml at path.
func LoadIoConfig(path string) (*IoConfig, error) {
	var raw ioToml
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("rtconfig: io.toml: %w", err)
	}

	var entries []ioimage.SafeStateEntry
	for _, e := range raw.Io.SafeState {
		addr, err := ioimage.ParseAddress(e.Address)
		if err != nil {
			return nil, fmt.Errorf("rtconfig: io.toml safe_state: %w", err)
		}
		val, err := parseSafeStateValue(e.Value, addr.Size)
		if err != nil {
			return nil, fmt.Errorf("rtconfig: io.toml safe_state %s: %w", e.Address, err)
		}
		entries = append(entries, ioimage.SafeStateEntry{Address: addr, Value: val})
	}

	return &IoConfig{
		Driver:    raw.Io.Driver,
		Params:    raw.Io.Params,
		SafeState: entries,
	}, nil
}

// sizeRange returns the inclusive maximum unsigned value representable in
// size's bit width (§6.2: "size-dependent BOOL/BYTE/WORD/DWORD/LWORD
// ranges"). SizeBit is handled separately by parseSafeStateValue.
func sizeRange(size ioimage.Size) uint64 {
	switch size {
	case ioimage.SizeByte:
		return 1<<8 - 1
	case ioimage.SizeWord:
		return 1<<16 - 1
	case ioimage.SizeDWord:
		return 1<<32 - 1
	default:
		return ^uint64(0)
	}
}

// parseSafeStateValue parses one safe_state literal, honoring a 0x/0X hex
// prefix and the addressed size's BOOL/BYTE/WORD/DWORD/LWORD range.
func parseSafeStateValue(text string, size ioimage.Size) (uint64, error) {
	trimmed := strings.TrimSpace(text)

	if size == ioimage.SizeBit {
		switch strings.ToUpper(trimmed) {
		case "TRUE", "1":
			return 1, nil
		case "FALSE", "0":
			return 0, nil
		default:
			return 0, fmt.Errorf("invalid BOOL safe_state value %q", trimmed)
		}
	}

	base := 10
	digits := trimmed
	if rest, ok := stripHexPrefix(trimmed); ok {
		base = 16
		digits = rest
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric safe_state value %q: %w", trimmed, err)
	}
	if max := sizeRange(size); v > max {
		return 0, fmt.Errorf("safe_state value %q exceeds range for this address size (max %d)", trimmed, max)
	}
	return v, nil
}

func stripHexPrefix(s string) (string, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return "", false
}
