package invoke

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint computes the stable cache key for a (name, arguments) pair.
// Arguments are canonicalized (recursive key ordering, uniform number and
// string formatting) so semantically identical calls hash identically
// regardless of key order or surface formatting in the original request.
func Fingerprint(name string, args map[string]any) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('\n')
	writeCanonical(&b, args)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		b.WriteString(strconv.Quote(val))
	case float64:
		writeNumber(b, val)
	case float32:
		writeNumber(b, float64(val))
	case int:
		writeNumber(b, float64(val))
	case int64:
		writeNumber(b, float64(val))
	case json.Number:
		if f, err := val.Float64(); err == nil {
			writeNumber(b, f)
		} else {
			b.WriteString(val.String())
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", val)
	}
}

// writeNumber formats every numeric type through the same float path, so 5,
// 5.0, and int64(5) all canonicalize to "5".
func writeNumber(b *strings.Builder, f float64) {
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}
