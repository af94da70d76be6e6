package llm

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draftEnvelope struct {
	Drafts []struct {
		ThreadID      string  `json:"thread_id"`
		AwaitingReply bool    `json:"awaiting_reply"`
		Reply         *string `json:"suggested_reply"`
	} `json:"drafts"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `  {"a": 1}  `, `{"a": 1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"prose wrapped", `Sure! The result is {"a": "x}y"} as requested.`, `{"a": "x}y"}`},
		{"array", `result: [1, 2] end`, `[1, 2]`},
		{"none", `I could not classify these emails.`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.raw))
		})
	}
}

func TestParseStructured(t *testing.T) {
	raw := "```json\n{\"drafts\": [{\"thread_id\": \"t9\", \"awaiting_reply\": true, \"suggested_reply\": \"On it.\",}]}\n```"

	var out draftEnvelope
	stats, err := ParseStructured(raw, &out, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, stats.WasRepaired)
	require.Len(t, out.Drafts, 1)
	assert.Equal(t, "t9", out.Drafts[0].ThreadID)
	require.NotNil(t, out.Drafts[0].Reply)
	assert.Equal(t, "On it.", *out.Drafts[0].Reply)
}

func TestParseStructured_NoJSON(t *testing.T) {
	var out draftEnvelope
	_, err := ParseStructured("nothing to see", &out, zerolog.Nop())
	assert.True(t, errors.Is(err, ErrNoJSON))
}

func TestParseStructured_TypeMismatch(t *testing.T) {
	var out draftEnvelope
	_, err := ParseStructured(`{"drafts": "not-a-list"}`, &out, zerolog.Nop())
	assert.Error(t, err)
}
