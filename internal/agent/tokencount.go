package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// estimator lazily loads the cl100k_base encoding once per process; a
// provider's own usage block always wins over this when present, per
// SPEC_FULL.md's "never authoritative" rule for token estimation.
var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// EstimateTokens returns a best-effort token count for text, used to
// populate tokens_in/tokens_out when a provider's response omits a usage
// block. The Tier-1/Tier-2 prompt budgets are counted in characters and do
// not use it. Returns a chars/4 fallback if the encoding failed to load.
func EstimateTokens(text string) int {
	e := encoding()
	if e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}
