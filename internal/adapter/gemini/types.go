package gemini

// GenerateContentRequest mirrors the Gemini generateContent request body.
// Both spellings of the system instruction field are accepted.
type GenerateContentRequest struct {
	Contents               []Content         `json:"contents"`
	SystemInstruction      *Content          `json:"systemInstruction,omitempty"`
	SystemInstructionSnake *Content          `json:"system_instruction,omitempty"`
	GenerationConfig       *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is a single turn in a Gemini conversation.
type Content struct {
	Role  string `json:"role,omitempty"` // "user" | "model"
	Parts []Part `json:"parts"`
}

// Part carries text content.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig carries sampling options.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	CandidateCount   *int     `json:"candidateCount,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
}

// GenerateContentResponse is the Gemini blocking response format. Streaming
// sends one per SSE event.
type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// Candidate is one response candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata carries token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
