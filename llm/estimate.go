package llm

// Character-to-token ratios by rough text class. Italian runs slightly more
// characters per token than English; code compresses better still.
var charsPerToken = map[string]float64{
	"default": 1.3,
	"english": 1.3,
	"italian": 1.4,
	"code":    1.7,
	"mixed":   1.35,
}

// messageOverheadTokens approximates the per-message framing cost (role
// markers and separators) the server charges on top of the content.
const messageOverheadTokens = 4

// EstimateTokens approximates token accounting for a completion whose stream
// carried no usage report. Counts are marked Estimated so downstream
// consumers can tell them apart from authoritative server counts.
func EstimateTokens(messages []ChatMessage, completion string) TokenCounts {
	ratio := charsPerToken[detectTextClass(completion)]

	prompt := messageOverheadTokens * len(messages)
	for _, message := range messages {
		prompt += int(float64(len(message.Content)) / ratio)
	}
	completionTokens := int(float64(len(completion)) / ratio)

	return TokenCounts{
		Prompt:     prompt,
		Completion: completionTokens,
		Total:      prompt + completionTokens,
		Estimated:  true,
	}
}

// EstimateMessageTokens approximates the prompt-side token cost of a message
// slice, used for trimming conversation memory to a budget.
func EstimateMessageTokens(messages []ChatMessage) int {
	total := messageOverheadTokens * len(messages)
	for _, message := range messages {
		total += int(float64(len(message.Content)) / charsPerToken["default"])
	}
	return total
}

// detectTextClass applies cheap heuristics to pick a ratio class: code
// punctuation density first, then accented-letter density for Italian, then
// ASCII share for English.
func detectTextClass(text string) string {
	if text == "" {
		return "default"
	}

	runes := []rune(text)
	var codeChars, accented, ascii int
	for _, r := range runes {
		switch r {
		case '{', '}', '(', ')', ';', '=', '<', '>', '[', ']':
			codeChars++
		}
		if (r >= 'à' && r <= 'ù') || (r >= 'À' && r <= 'Ù') {
			accented++
		}
		if r < 128 {
			ascii++
		}
	}

	total := float64(len(runes))
	switch {
	case float64(codeChars)/total > 0.15:
		return "code"
	case float64(accented)/total > 0.02:
		return "italian"
	case float64(ascii)/total > 0.95:
		return "english"
	default:
		return "mixed"
	}
}
