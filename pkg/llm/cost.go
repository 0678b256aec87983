package llm

import "github.com/ekaya-inc/datagenie-engine/pkg/models"

// Remote pricing in USD per million tokens, with the token budget split
// 40/60 between input and output.
const (
	remoteInputPricePerMTok  = 3.0
	remoteOutputPricePerMTok = 15.0
	inputTokenShare          = 0.4
	outputTokenShare         = 0.6

	charsPerToken             = 4
	defaultExpectedOutputToks = 200
)

// EstimateTokens approximates the token count of a prompt plus its expected reply.
func EstimateTokens(prompt Prompt, expectedOutput int) int {
	if expectedOutput <= 0 {
		expectedOutput = defaultExpectedOutputToks
	}
	return prompt.Len()/charsPerToken + expectedOutput
}

// EstimateCost returns the estimated USD cost of sending prompt to a backend.
// Local calls cost nothing.
func EstimateCost(kind models.BackendKind, prompt Prompt, expectedOutput int) float64 {
	if kind != models.BackendRemote {
		return 0
	}
	tokens := float64(EstimateTokens(prompt, expectedOutput))
	input := tokens * inputTokenShare * remoteInputPricePerMTok / 1_000_000
	output := tokens * outputTokenShare * remoteOutputPricePerMTok / 1_000_000
	return input + output
}
