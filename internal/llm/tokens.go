package llm

// EstimateTokens approximates the token count of a text using the common
// four-characters-per-token heuristic. Used when a provider omits usage
// metadata.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// estimateUsage fills best-effort usage for a request/response pair.
func estimateUsage(req ChatRequest, content string) TokenUsage {
	in := EstimateTokens(req.System)
	for _, m := range req.Messages {
		in += EstimateTokens(m.Text())
	}
	return TokenUsage{
		InputTokens:  in,
		OutputTokens: EstimateTokens(content),
		Estimated:    true,
	}
}
