package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoJSON is returned when a model response carries no JSON payload at all.
var ErrNoJSON = errors.New("no JSON found in response")

// ParseStructured extracts the JSON payload from a free-form model response,
// repairs it when malformed, and decodes it into target.
func ParseStructured(raw string, target interface{}, logger zerolog.Logger) (RepairStats, error) {
	payload := ExtractJSON(raw)
	if payload == "" {
		logger.Warn().Str("response_head", truncateForLog(raw, 200)).Msg("No JSON found in model response")
		return RepairStats{}, ErrNoJSON
	}

	repaired, stats, err := RepairJSON(payload)
	if stats.WasRepaired {
		logger.Info().
			Strs("strategies", stats.Strategies).
			Int("original_bytes", stats.OriginalBytes).
			Int("repaired_bytes", stats.RepairedBytes).
			Msg("Repaired malformed JSON from model")
	}
	if err != nil {
		logger.Error().Err(err).Str("payload_head", truncateForLog(payload, 500)).Msg("JSON repair failed")
		return stats, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return stats, fmt.Errorf("decode structured response: %w", err)
	}
	return stats, nil
}

// ExtractJSON returns the first JSON object or array in raw. Fenced code
// blocks are preferred; otherwise the first balanced {...} or [...] is taken.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if fenced := fencedBlock(raw); fenced != "" {
		return fenced
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}
	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// unterminated; let RepairJSON close it
	return raw[start:]
}

func fencedBlock(raw string) string {
	if !strings.Contains(raw, "```") {
		return ""
	}
	var lines []string
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inBlock {
				break
			}
			inBlock = true
			continue
		}
		if inBlock {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
