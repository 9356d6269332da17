package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// RepairError reports that no JSON object could be recovered from the model
// output. It carries enough context to diagnose the failure without
// re-running the call.
type RepairError struct {
	Offset   int      // byte offset of the parse failure in the repaired text
	Context  string   // ~50-char window around the offset
	NearKeys []string // key names seen near the failure
	Cause    error
}

func (e *RepairError) Error() string {
	msg := fmt.Sprintf("unrecoverable JSON at offset %d (near %q)", e.Offset, e.Context)
	if len(e.NearKeys) > 0 {
		msg += " keys=" + strings.Join(e.NearKeys, ",")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RepairError) Unwrap() error { return e.Cause }

var (
	reFence         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	reFenceOpenOnly = regexp.MustCompile("(?s)```(?:json)?\\s*(.*)")
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	reLooseObject   = regexp.MustCompile(`(?s)\{.*\}`)
	reKeyName       = regexp.MustCompile(`"([A-Za-z0-9_]+)"\s*:`)
)

// ExtractObject pulls a JSON object out of arbitrary model text, tolerating
// markdown fences, leading/trailing prose, truncated generations and trailing
// commas. It never panics; the only error type returned is *RepairError.
func ExtractObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	// Cheap structural check first: parse directly only when the text already
	// looks like one balanced object. For malformed input, repairing before
	// parsing beats parsing twice.
	if looksBalanced(trimmed) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return obj, nil
		}
	}

	repaired := repair(trimmed)
	var obj map[string]any
	err := json.Unmarshal([]byte(repaired), &obj)
	if err == nil {
		return obj, nil
	}

	// Loose fallback: grab the widest {...} span and run the closing/comma
	// repairs once more.
	if m := reLooseObject.FindString(trimmed); m != "" {
		second := repair(m)
		if err2 := json.Unmarshal([]byte(second), &obj); err2 == nil {
			return obj, nil
		}
	}

	return nil, newRepairError(repaired, err)
}

func looksBalanced(s string) bool {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	return strings.Count(s, "{") == strings.Count(s, "}") &&
		strings.Count(s, "[") == strings.Count(s, "]")
}

// repair strips fences and prose, truncates to the last balanced top-level
// object, and closes whatever remains open in a truncated generation.
func repair(s string) string {
	s = stripFences(s)

	// Drop prose before the first brace.
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	} else if i < 0 {
		return s
	}

	var open []byte
	inString := false
	escaped := false
	lastBalanced := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			open = append(open, c)
		case '}', ']':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
			if len(open) == 0 && c == '}' {
				lastBalanced = i
			}
		}
	}

	if lastBalanced >= 0 {
		// Truncate trailing prose after the last balanced object.
		s = s[:lastBalanced+1]
	} else if len(open) > 0 {
		// Truncated generation: close an open string, drop a dangling comma,
		// then close what remains open, innermost first. Generations most
		// often cut out mid-array, inside items.
		if inString {
			s += `"`
		}
		s = strings.TrimRight(s, " \t\n\r")
		s = strings.TrimSuffix(s, ",")
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == '{' {
				s += "}"
			} else {
				s += "]"
			}
		}
	}

	return reTrailingComma.ReplaceAllString(s, "$1")
}

func stripFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	// An unterminated fence is common in truncated generations.
	if strings.Contains(s, "```") {
		if m := reFenceOpenOnly.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return s
}

func newRepairError(repaired string, cause error) *RepairError {
	offset := 0
	var syn *json.SyntaxError
	if errors.As(cause, &syn) {
		offset = int(syn.Offset)
	}
	lo := offset - 25
	if lo < 0 {
		lo = 0
	}
	hi := offset + 25
	if hi > len(repaired) {
		hi = len(repaired)
	}
	window := repaired[lo:hi]

	var keys []string
	for _, m := range reKeyName.FindAllStringSubmatch(window, -1) {
		keys = append(keys, m[1])
	}
	return &RepairError{Offset: offset, Context: window, NearKeys: keys, Cause: cause}
}
