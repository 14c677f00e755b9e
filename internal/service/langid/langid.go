// Package langid provides a word-frequency heuristic for deciding
// whether recognized text is already in the target language, so the
// pipeline can skip a redundant translation round trip.
//
// The heuristic is intentionally approximate. A false negative costs an
// unnecessary translation call; a false positive shows up as
// wrong-language output. Tune thresholds with evidence, not taste.
package langid

import "strings"

// Thresholds observed at the two call sites. They are configured
// separately on purpose; do not collapse them into one value.
const (
	// ThresholdLive is used on the per-chunk path, where fragments are
	// short and a lenient match avoids translating English mid-sentence.
	ThresholdLive = 0.1

	// ThresholdBatch is used on the end-of-session path, where the full
	// transcript gives the ratio more signal.
	ThresholdBatch = 0.3
)

// englishFunctionWords is a closed set of common English function words.
// Membership of whitespace tokens in this set drives the classification.
var englishFunctionWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "i",
	"it", "for", "not", "on", "with", "he", "as", "you", "do", "at",
	"this", "but", "his", "by", "from", "they", "we", "say", "her", "she",
	"or", "an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"is", "are", "was", "were", "been", "has", "had", "can", "could", "should",
}

// Classifier decides whether text is in the target language.
type Classifier struct {
	words     map[string]struct{}
	threshold float64
}

// New returns a classifier over the default English function-word set.
func New(threshold float64) *Classifier {
	return NewWithWords(englishFunctionWords, threshold)
}

// NewWithWords returns a classifier over a caller-supplied word set.
func NewWithWords(words []string, threshold float64) *Classifier {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Classifier{words: set, threshold: threshold}
}

// Threshold returns the configured match-fraction threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// IsTarget reports whether the fraction of tokens found in the word set
// exceeds the threshold. Empty text is not target-language.
func (c *Classifier) IsTarget(text string) bool {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return false
	}

	matches := 0
	for _, tok := range tokens {
		tok = strings.ToLower(strings.Trim(tok, ".,!?;:\"'()[]"))
		if tok == "" {
			continue
		}
		if _, ok := c.words[tok]; ok {
			matches++
		}
	}

	return float64(matches)/float64(len(tokens)) > c.threshold
}
