package analysis

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// dataShare is the fraction of the remaining input budget given to data
// sources. The rest is headroom for the command and tokenizer drift.
const dataShare = 0.7

// TruncationMarker is appended to source content cut to fit the budget.
const TruncationMarker = "\n...[truncated]"

// Budget splits a model's context window between the prompt and the data
// sources.
type Budget struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// NewBudget creates a budget for model. maxTokens is the model's context
// window and reserve is held back for the reply. Unknown models fall back
// to the cl100k_base encoding.
func NewBudget(model string, maxTokens, reserve int) (*Budget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Budget{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// CountTokens returns the token count for text.
func (b *Budget) CountTokens(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// PerSource returns the token allowance for each of n sources once
// fixedTokens of prompt and command have been accounted for.
func (b *Budget) PerSource(fixedTokens, n int) int {
	if n <= 0 {
		return 0
	}
	remaining := b.maxTokens - b.reserve - fixedTokens
	if remaining <= 0 {
		return 0
	}
	return int(float64(remaining)*dataShare) / n
}

// Truncate cuts text to at most limit tokens. It reports whether anything
// was cut.
func (b *Budget) Truncate(text string, limit int) (string, bool) {
	tokens := b.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text, false
	}
	if limit <= 0 {
		return TruncationMarker, true
	}
	return b.tokenizer.Decode(tokens[:limit]) + TruncationMarker, true
}
