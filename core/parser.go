package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	thinkOpen   = "<think>"
	thinkClose  = "</think>"
	answerOpen  = "<answer>"
	answerClose = "</answer>"
)

// ParseResponse extracts the (thinking, action) pair from a complete model
// reply. It is total and deterministic: every input maps to exactly one
// result and no input panics.
//
// Extraction is a chain of fallbacks: explicit <think>/<answer> tags, an
// unterminated <answer> tag, a call-style line scanned from the end, and
// finally the raw text with any identified thinking removed.
func ParseResponse(raw string) (thinking, action string) {
	if i := strings.Index(raw, thinkOpen); i >= 0 {
		if j := strings.Index(raw, thinkClose); j > i {
			thinking = strings.TrimSpace(raw[i+len(thinkOpen) : j])
		}
	}

	if i := strings.Index(raw, answerOpen); i >= 0 {
		rest := raw[i+len(answerOpen):]
		if j := strings.Index(rest, answerClose); j >= 0 {
			return thinking, strings.TrimSpace(rest[:j])
		}
		// Truncated reply: treat everything after the opening tag as the
		// best-effort complete action.
		return thinking, strings.TrimSpace(rest)
	}

	// No answer tags: the last line that looks like a call is the action,
	// everything before it is thinking. Lines after the action line are
	// dropped from thinking (best-effort tie-break for trailing text).
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "do(") || strings.HasPrefix(line, "finish(") {
			action = line
			var before []string
			for _, l := range lines {
				if strings.TrimSpace(l) == action {
					break
				}
				before = append(before, l)
			}
			thinking = strings.TrimSpace(strings.Join(before, "\n"))
			return thinking, action
		}
	}

	// Total-coverage fallback: never return an empty action for non-empty
	// input.
	action = strings.TrimSpace(strings.Replace(raw, thinking, "", 1))
	return thinking, action
}

// ParseAction decodes a call-style action string such as do(action="Tap",
// element=[540, 960]) or finish(message="done") into a ParsedAction map.
// Returns an error when the string does not match either shape; callers
// recover by substituting a synthetic finish action.
func ParseAction(s string) (ParsedAction, error) {
	s = strings.TrimSpace(s)

	var name, body string
	switch {
	case strings.HasPrefix(s, "do(") && strings.HasSuffix(s, ")"):
		name, body = "do", s[len("do(") : len(s)-1]
	case strings.HasPrefix(s, "finish(") && strings.HasSuffix(s, ")"):
		name, body = "finish", s[len("finish(") : len(s)-1]
	default:
		return nil, fmt.Errorf("action %q is not a do()/finish() call", truncateAction(s))
	}

	action := ParsedAction{metadataKey: name}
	args, err := splitArgs(body)
	if err != nil {
		return nil, err
	}
	for _, arg := range args {
		eq := strings.Index(arg, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("malformed argument %q", arg)
		}
		key := strings.TrimSpace(arg[:eq])
		val, err := parseValue(strings.TrimSpace(arg[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		action[key] = val
	}
	return action, nil
}

// splitArgs splits a comma-separated argument list, respecting quoted
// strings and bracketed lists.
func splitArgs(body string) ([]string, error) {
	var args []string
	var cur strings.Builder
	depth := 0
	inString := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inString:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(body) {
				i++
				cur.WriteByte(body[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			cur.WriteByte(c)
		case c == '[' || c == '(':
			depth++
			cur.WriteByte(c)
		case c == ']' || c == ')':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string in arguments")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in arguments")
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		args = append(args, rest)
	}
	return args, nil
}

func parseValue(s string) (any, error) {
	switch {
	case strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2:
		return strconv.Unquote(s)
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}, nil
		}
		parts, err := splitArgs(inner)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			v, err := parseValue(p)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case s == "True" || s == "true":
		return true, nil
	case s == "False" || s == "false":
		return false, nil
	case s == "None" || s == "null":
		return nil, nil
	default:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, nil
		}
		return nil, fmt.Errorf("unrecognized value %q", s)
	}
}

func truncateAction(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
