// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns papers to library categories from their
// title, abstract, and authors. Categories double as directory names
// under the staging root and the library root.
package classify

import "strings"

// Categories, in match precedence order. The last entry is the default.
const (
	RedTeaming     = "Red Teaming"
	Alignment      = "Alignment Research"
	AgenticAI      = "Agentic AI"
	Consciousness  = "Consciousness"
	Futures        = "Futures"
	Taxonomy       = "Taxonomy Research"
	Uncategorized  = "AI Safety (Unspecified)"
)

// categoryKeywords maps each category to its trigger keywords, checked
// in order.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{RedTeaming, []string{"red team", "jailbreak", "prompt injection", "adversarial", "attack", "exploit", "trojan", "backdoor"}},
	{Alignment, []string{"alignment", "constitutional ai", "rlhf", "dpo", "preference optimization", "value learning", "reward modeling"}},
	{AgenticAI, []string{"agent", "multi-agent", "autonomous system", "autonomy", "planning", "tool use"}},
	{Consciousness, []string{"consciousness", "personhood", "sentience", "qualia", "subjective experience", "persona ", "personality"}},
	{Futures, []string{"future", "forecast", "predict", "trajectory", "scenario", "long-term", "existential", "x-risk"}},
	{Taxonomy, []string{"taxonomy", "survey", "landscape", "review", "framework", "categorization", "overview"}},
}

// Classifier assigns categories, with an author-based override: papers
// by any configured author go to a folder named after them regardless of
// content.
type Classifier struct {
	// authorFolders maps a lower-cased author name to its dedicated
	// category folder.
	authorFolders map[string]string
}

// New builds a classifier. authorFolders maps author names (any casing)
// to folder names; it may be nil.
func New(authorFolders map[string]string) *Classifier {
	folders := make(map[string]string, len(authorFolders))
	for name, folder := range authorFolders {
		folders[strings.ToLower(name)] = folder
	}
	return &Classifier{authorFolders: folders}
}

// Classify returns the category for a paper.
func (c *Classifier) Classify(title, abstract, authors string) string {
	if authors != "" {
		authorsLower := strings.ToLower(authors)
		for name, folder := range c.authorFolders {
			if strings.Contains(authorsLower, name) {
				return folder
			}
		}
	}

	text := strings.ToLower(title + " " + abstract)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.category
			}
		}
	}
	return Uncategorized
}
