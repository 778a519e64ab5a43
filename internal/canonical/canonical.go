// Package canonical provides the deterministic hashing primitives used by the
// trust ledger and the evidence store. All chain hashes and snippet hashes in
// the system are built from the two exports here: Marshal, which produces a
// byte-stable JSON encoding (sorted object keys, ES6-style number formatting,
// minimal string escapes), and Digest, which is hex-encoded SHA-256.
//
// Two structurally equal values always canonicalize to the same bytes
// regardless of construction order, so semantically identical metadata always
// hashes identically. Cyclic or otherwise non-serializable values are a
// programming error and return an error rather than a partial encoding.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Marshal encodes v into canonical JSON bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		encodeString(buf, val)
	case json.Number:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return encodeFloat(buf, f)
	case float64:
		return encodeFloat(buf, val)
	case float32:
		return encodeFloat(buf, float64(val))
	case int:
		return encodeFloat(buf, float64(val))
	case int8:
		return encodeFloat(buf, float64(val))
	case int16:
		return encodeFloat(buf, float64(val))
	case int32:
		return encodeFloat(buf, float64(val))
	case int64:
		return encodeFloat(buf, float64(val))
	case uint:
		return encodeFloat(buf, float64(val))
	case uint8:
		return encodeFloat(buf, float64(val))
	case uint16:
		return encodeFloat(buf, float64(val))
	case uint32:
		return encodeFloat(buf, float64(val))
	case uint64:
		return encodeFloat(buf, float64(val))
	case map[string]any:
		return encodeObject(buf, val)
	case []any:
		return encodeArray(buf, val)
	case json.RawMessage:
		return encodeRaw(buf, []byte(val))
	default:
		// Structs and everything else round-trip through encoding/json first.
		// json.Marshal rejects cycles, channels, funcs etc. for us.
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonicalize %T: %w", val, err)
		}
		return encodeRaw(buf, b)
	}
	return nil
}

func encodeRaw(buf *bytes.Buffer, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("canonicalize: %w", err)
	}
	return encodeValue(buf, decoded)
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// encodeFloat writes f in the shortest ES6-compatible decimal form, so that
// 1, 1.0 and json.Number("1") all encode as "1".
func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("canonicalize: NaN and Inf are not representable in JSON")
	}
	if f == 0 {
		buf.WriteString("0")
		return nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	parts := strings.SplitN(sci, "e", 2)
	exp, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("canonicalize float: %w", err)
	}
	digits := strings.ReplaceAll(parts[0], ".", "")

	// ES6 prints the exponent sign explicitly: 1e+21, 1e-7.
	expStr := strconv.Itoa(exp)
	if exp > 0 {
		expStr = "+" + expStr
	}

	switch {
	case exp <= -7 || exp >= 21:
		if len(digits) == 1 {
			buf.WriteString(sign + digits + "e" + expStr)
		} else {
			buf.WriteString(sign + digits[:1] + "." + digits[1:] + "e" + expStr)
		}
	case exp+1 >= len(digits):
		buf.WriteString(sign + digits + strings.Repeat("0", exp+1-len(digits)))
	case exp < 0:
		buf.WriteString(sign + "0." + strings.Repeat("0", -exp-1) + digits)
	default:
		buf.WriteString(sign + digits[:exp+1] + "." + digits[exp+1:])
	}
	return nil
}
