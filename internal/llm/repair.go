package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what RepairJSON had to do to a payload.
type RepairStats struct {
	OriginalBytes int      `json:"original_bytes"`
	RepairedBytes int      `json:"repaired_bytes"`
	Strategies    []string `json:"strategies"`
	WasRepaired   bool     `json:"was_repaired"`
}

type repairStrategy struct {
	name  string
	apply func(string) string
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Cheap local fixes tried before handing the payload to jsonrepair.
var repairStrategies = []repairStrategy{
	{"trailing_commas", func(s string) string { return trailingCommaRe.ReplaceAllString(s, "$1") }},
	{"comments_removed", func(s string) string {
		return blockCommentRe.ReplaceAllString(lineCommentRe.ReplaceAllString(s, ""), "")
	}},
	{"completion", closeOpenStructures},
	{"jsonrepair_library", func(s string) string {
		out, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return s
		}
		return out
	}},
}

// RepairJSON returns raw unchanged when it is already valid JSON. Otherwise it
// applies the repair strategies in order until the payload parses.
func RepairJSON(raw string) (string, RepairStats, error) {
	stats := RepairStats{OriginalBytes: len(raw)}
	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired := raw
	for _, strategy := range repairStrategies {
		next := strategy.apply(repaired)
		if next == repaired {
			continue
		}
		repaired = next
		stats.Strategies = append(stats.Strategies, strategy.name)
		if json.Valid([]byte(repaired)) {
			stats.RepairedBytes = len(repaired)
			return repaired, stats, nil
		}
	}

	stats.RepairedBytes = len(repaired)
	return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies))
}

// closeOpenStructures appends the closers for any object or array left open,
// ignoring brackets inside string literals.
func closeOpenStructures(s string) string {
	s = strings.TrimSpace(s)
	var stack []byte
	inString, escaped := false, false
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
