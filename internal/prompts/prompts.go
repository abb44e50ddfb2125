package prompts

const DefaultSystem = "You are a helpful call center agent. Keep responses concise and conversational."

// ForSession resolves the final system prompt for a call session.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}
