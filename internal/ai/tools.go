package ai

// Tool describes a structured-output contract as a function the model must
// call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	// ResultKey is the top-level property holding the result array.
	ResultKey string
}

// CategorizationTool is the schema for the categorize pass.
var CategorizationTool = Tool{
	Name:        "submit_categorizations",
	Description: "Submit the categorization results for a batch of email threads.",
	ResultKey:   "categorizations",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"categorizations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"email_id": map[string]any{"type": "string"},
						"category": map[string]any{
							"type": "string",
							"enum": []string{"Summary Only", "Action Eventually", "Action Immediately"},
						},
						"priority":  map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
						"summary":   map[string]any{"type": "string"},
						"reasoning": map[string]any{"type": "string"},
					},
					"required": []string{"email_id", "category", "priority", "summary", "reasoning"},
				},
			},
		},
		"required": []string{"categorizations"},
	},
}

// DraftTool is the schema for the draft-reply pass.
var DraftTool = Tool{
	Name:        "submit_drafts",
	Description: "Submit reply draft decisions for a batch of email threads.",
	ResultKey:   "drafts",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"drafts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"thread_id":       map[string]any{"type": "string"},
						"awaiting_reply":  map[string]any{"type": "boolean"},
						"suggested_reply": map[string]any{"type": "string", "nullable": true},
					},
					"required": []string{"thread_id", "awaiting_reply"},
				},
			},
		},
		"required": []string{"drafts"},
	},
}
