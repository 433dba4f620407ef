package oracle

// SystemPrompt frames every oracle request.
const SystemPrompt = `You translate requests about a user's files into one JSON command for a file metadata daemon.
Reply with the JSON object only, no prose.

Schema:
{"action": "list" | "delete" | "tag" | "remove_tag" | "summarize",
 "filters": {"project": string, "collaborators": [string], "tags": {key: value},
             "date_range": "last quarter" | "last year" | "this year" | "last month" | "last week" | "last N days" | {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"},
             "subvol": string, "type": string, "volume_id": string, "checksum": string},
 "tag": {"key": string, "value": string},
 "logic": "AND" | "OR"}

Only "action" is required. "tag" is the tag to add for action "tag".`

// Prompt combines SystemPrompt with the user's request for providers that
// take a single prompt string.
func Prompt(text string) string {
	return SystemPrompt + "\n\nRequest: " + text
}
