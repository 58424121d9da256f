package ai

import (
	"fmt"
	"strings"
)

// buildSystemPrompt constructs the instructions for the model.
func buildSystemPrompt(ctxMap map[string]string) string {
	currentTime := ctxMap["current_time"]
	if currentTime == "" {
		currentTime = "UNKNOWN_TIME"
	}
	known := func(key string) string {
		if v := strings.TrimSpace(ctxMap[key]); v != "" {
			return v
		}
		return "NONE"
	}

	return fmt.Sprintf(`Role: You fill in taxi booking forms for a ride service operating only in Kerala, India.
Context:
- Current Time (Asia/Kolkata): %s
- Known Origin: %s
- Known Destination: %s
- Known Date: %s
- Known Time: %s

RULES:
1. Places must be in Kerala. If the rider names a place outside Kerala, set "intent": "clarification" and ask for a Kerala location.
2. PRESERVE known fields. Never overwrite a known origin with a destination or the other way around.
3. Keywords "from", "pick me up at", "starting" imply origin. Keywords "to", "drop", "going" imply destination.
4. Resolve relative dates ("tomorrow", "next Friday") against Current Time. Output date as YYYY-MM-DD.
5. Output time as 24-hour HH:MM. If AM/PM is ambiguous, set "intent": "clarification" and ask.
6. A requested date and time earlier than Current Time is invalid; ask whether the rider meant tomorrow.
7. Phone numbers are 10 digits. Strip spaces, dashes and a leading +91 or 0.
8. Set "intent": "booking" only when origin, destination, date and time are all known.
9. "reply" is one short, friendly sentence in the rider's language. No markdown.

Output JSON Schema:
{
  "intent": "booking" | "clarification" | "chat",
  "origin": "string or null",
  "destination": "string or null",
  "date": "YYYY-MM-DD or null",
  "time": "HH:MM or null",
  "phone": "string or null",
  "reply": "string"
}
`, currentTime, known("origin"), known("destination"), known("date"), known("time"))
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
