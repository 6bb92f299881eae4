// Package intent classifies an incoming question without calling the model
package intent

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Intent int

const (
	FinancialQuery Intent = iota
	SmallTalk
	NoDataAvailable
)

func (i Intent) String() string {
	switch i {
	case SmallTalk:
		return "small_talk"
	case NoDataAvailable:
		return "no_data_available"
	default:
		return "financial_query"
	}
}

// DefaultSmallTalkPhrases are matched as plain substrings of the lowercased
// question, so "hi" also matches "this" or "which".
var DefaultSmallTalkPhrases = []string{
	"hi", "hello", "hey",
	"how are you", "what's up", "whats up",
	"good morning", "good afternoon", "good evening",
	"hola", "bonjour", "ciao", "namaste", "merhaba", "hallo", "salam",
}

type Classifier struct {
	phrases []string
}

func NewClassifier(phrases []string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultSmallTalkPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &Classifier{phrases: normalized}
}

// Classify checks small talk first, then whether there is any data to reason
// over. Small talk wins even when the question also asks something financial.
func (c *Classifier) Classify(question string, snapshotPresent bool) Intent {
	if c.isSmallTalk(question) {
		return SmallTalk
	}
	if !snapshotPresent {
		return NoDataAvailable
	}
	return FinancialQuery
}

func (c *Classifier) isSmallTalk(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, phrase := range c.phrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// SnapshotPresent reports whether raw holds a JSON object. null, scalars and
// arrays do not count as a financial snapshot.
func SnapshotPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
