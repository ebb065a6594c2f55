package stdlib

import (
	"fmt"
	"strings"
)

// Len implements LEN.
func Len(s string) int64 { return int64(len(s)) }

// Left implements LEFT(IN, L).
func Left(s string, l int64) (string, error) {
	if l < 0 {
		return "", fmt.Errorf("LEFT: negative length %d", l)
	}
	if int(l) > len(s) {
		l = int64(len(s))
	}
	return s[:l], nil
}

// Right implements RIGHT(IN, L).
func Right(s string, l int64) (string, error) {
	if l < 0 {
		return "", fmt.Errorf("RIGHT: negative length %d", l)
	}
	if int(l) > len(s) {
		l = int64(len(s))
	}
	return s[len(s)-int(l):], nil
}

// Mid implements MID(IN, L, P) (1-based start position P).
func Mid(s string, l, p int64) (string, error) {
	if p < 1 || l < 0 {
		return "", fmt.Errorf("MID: invalid length/position (L=%d P=%d)", l, p)
	}
	start := int(p - 1)
	if start >= len(s) {
		return "", nil
	}
	end := start + int(l)
	if end > len(s) {
		end = len(s)
	}
	return s[start:end], nil
}

// Concat implements CONCAT(IN1, IN2, ...).
func Concat(parts ...string) string {
	return strings.Join(parts, "")
}

// Insert implements INSERT(IN1, IN2, P): inserts IN2 into IN1 after position P.
func Insert(in1, in2 string, p int64) (string, error) {
	if p < 0 || int(p) > len(in1) {
		return "", fmt.Errorf("INSERT: position %d out of range", p)
	}
	return in1[:p] + in2 + in1[p:], nil
}

// Delete implements DELETE(IN, L, P): deletes L characters starting at 1-based P.
func Delete(in string, l, p int64) (string, error) {
	if p < 1 || l < 0 {
		return "", fmt.Errorf("DELETE: invalid length/position (L=%d P=%d)", l, p)
	}
	start := int(p - 1)
	if start >= len(in) {
		return in, nil
	}
	end := start + int(l)
	if end > len(in) {
		end = len(in)
	}
	return in[:start] + in[end:], nil
}

// Replace implements REPLACE(IN1, IN2, L, P): replaces L characters of IN1
// starting at 1-based P with IN2.
func Replace(in1, in2 string, l, p int64) (string, error) {
	if p < 1 || l < 0 {
		return "", fmt.Errorf("REPLACE: invalid length/position (L=%d P=%d)", l, p)
	}
	start := int(p - 1)
	if start > len(in1) {
		return "", fmt.Errorf("REPLACE: position %d out of range", p)
	}
	end := start + int(l)
	if end > len(in1) {
		end = len(in1)
	}
	return in1[:start] + in2 + in1[end:], nil
}

// Find implements FIND(IN1, IN2): 1-based index of the first occurrence of
// IN2 within IN1, or 0 if not found.
func Find(in1, in2 string) int64 {
	idx := strings.Index(in1, in2)
	if idx < 0 {
		return 0
	}
	return int64(idx + 1)
}
