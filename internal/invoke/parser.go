// Package invoke implements the tool invocation engine: call parsing,
// argument fingerprinting, result caching, and the invoker state machine.
package invoke

import (
	"encoding/json"
	"strconv"
	"strings"

	"prizmagent/internal/domain"
)

// ToolCallRequest is the structured (name, arguments) pair extracted from a
// raw request. Name is empty for the flat key=value form, where the target is
// already known from context.
type ToolCallRequest struct {
	Name string
	Args map[string]any
}

// Parse extracts a tool call from raw text, trying each accepted grammar in
// priority order: function-call form `name(a, k=v)`, JSON object form
// `{"name": ..., "arguments": {...}}`, then flat `key=value` pairs. The first
// matching grammar wins. When nothing matches it fails with UnparsableCall;
// the parser never invents a tool name.
func Parse(raw string) (ToolCallRequest, error) {
	text := strings.TrimSpace(raw)
	text = stripCodeFence(text)
	if text == "" {
		return ToolCallRequest{}, domain.Failf(domain.UnparsableCall, "empty request")
	}

	if req, ok := parseCallExpr(text); ok {
		return req, nil
	}
	if req, ok := parseJSONObject(text); ok {
		return req, nil
	}
	if req, ok := parseKeyValues(text); ok {
		return req, nil
	}

	return ToolCallRequest{}, domain.Failf(domain.UnparsableCall, "no tool call recognized in %q", truncate(raw, 120))
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// wrap around structured calls.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return s
}

// parseCallExpr recognizes the function-call form: an identifier followed by
// a balanced, quote-aware argument list. The expression may be embedded in
// surrounding free text; the first well-formed call wins. Positional
// arguments are stored under "arg0", "arg1", ...; named arguments keep their
// names.
func parseCallExpr(s string) (ToolCallRequest, bool) {
	for i := 0; i < len(s); i++ {
		if !isIdentStart(s[i]) {
			continue
		}
		j := i
		for j < len(s) && isIdentChar(s[j]) {
			j++
		}
		if j >= len(s) || s[j] != '(' {
			i = j
			continue
		}
		name := s[i:j]
		end, ok := matchParen(s, j)
		if !ok {
			// Unbalanced parens: not a call expression, and any later
			// candidate would sit inside this broken one.
			return ToolCallRequest{}, false
		}
		args, ok := parseArgList(s[j+1 : end])
		if !ok {
			i = j
			continue
		}
		return ToolCallRequest{Name: name, Args: args}, true
	}
	return ToolCallRequest{}, false
}

// matchParen returns the index of the ')' matching the '(' at open,
// respecting quoted strings.
func matchParen(s string, open int) (int, bool) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseArgList parses a comma-separated argument list with positional and
// named (key=value) arguments.
func parseArgList(list string) (map[string]any, bool) {
	args := make(map[string]any)
	pos := 0
	for _, part := range splitOutsideQuotes(list, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, val, ok := splitKeyValue(part); ok {
			args[key] = parseScalar(val)
			continue
		}
		args["arg"+strconv.Itoa(pos)] = parseScalar(part)
		pos++
	}
	return args, true
}

// parseJSONObject recognizes a JSON object carrying a name/tool key and an
// arguments/args key, possibly embedded in surrounding text.
func parseJSONObject(s string) (ToolCallRequest, bool) {
	if req, ok := tryCallJSON(s); ok {
		return req, true
	}
	if start, end := findJSONBounds(s); start >= 0 && end > start {
		return tryCallJSON(s[start:end])
	}
	return ToolCallRequest{}, false
}

func tryCallJSON(raw string) (ToolCallRequest, bool) {
	var obj struct {
		Name       string         `json:"name"`
		Tool       string         `json:"tool"`
		Arguments  map[string]any `json:"arguments"`
		Args       map[string]any `json:"args"`
		Parameters map[string]any `json:"parameters"`
	}
	text := raw
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		text = sanitizeJSONEscapes(text)
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return ToolCallRequest{}, false
		}
	}
	name := obj.Name
	if name == "" {
		name = obj.Tool
	}
	if name == "" {
		return ToolCallRequest{}, false
	}
	args := obj.Arguments
	if args == nil {
		args = obj.Args
	}
	if args == nil {
		args = obj.Parameters
	}
	if args == nil {
		args = make(map[string]any)
	}
	return ToolCallRequest{Name: name, Args: args}, true
}

// findJSONBounds locates the first top-level JSON object in s, respecting
// string literals. Returns (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// parseKeyValues recognizes the flat key=value form: whitespace- or
// comma-separated pairs with no tool name. Every token must be a well-formed
// pair; a stray token rejects the whole grammar.
func parseKeyValues(s string) (ToolCallRequest, bool) {
	fields := splitKVTokens(s)
	if len(fields) == 0 {
		return ToolCallRequest{}, false
	}
	args := make(map[string]any, len(fields))
	for _, f := range fields {
		key, val, ok := splitKeyValue(f)
		if !ok {
			return ToolCallRequest{}, false
		}
		args[key] = parseScalar(val)
	}
	return ToolCallRequest{Args: args}, true
}

// splitKVTokens splits on commas and whitespace outside quotes.
func splitKVTokens(s string) []string {
	var tokens []string
	var cur strings.Builder
	var quote byte
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			tokens = append(tokens, t)
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			cur.WriteByte(ch)
			if ch == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
			cur.WriteByte(ch)
		case ',', ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if quote != 0 {
		return nil // unterminated quote
	}
	flush()
	return tokens
}

// splitKeyValue splits "key=value" where key is an identifier and '=' sits
// outside quotes.
func splitKeyValue(s string) (string, string, bool) {
	eq := -1
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			quote = ch
			continue
		}
		if ch == '=' {
			eq = i
			break
		}
	}
	if eq <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(s[:eq])
	if !isIdentifier(key) {
		return "", "", false
	}
	return key, strings.TrimSpace(s[eq+1:]), true
}

// parseScalar interprets an argument value: quoted string, number, boolean,
// or bare identifier (kept as a string).
func parseScalar(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return unescape(s[1 : len(s)-1])
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by some
// LLMs. Valid escapes keep their backslash; invalid ones drop it.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			cur.WriteByte(ch)
			if ch == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
			cur.WriteByte(ch)
		case sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
