// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package naming converts scraped titles into clean Title Case names and
// filesystem-safe PDF filenames. Every adapter shares this contract so a
// paper found twice produces the same filename both times.
package naming

import (
	"regexp"
	"strings"
	"unicode"
)

// acronyms are preserved in their canonical casing instead of being
// title-cased.
var acronyms = map[string]string{
	"AI": "AI", "AGI": "AGI", "LLM": "LLM", "LLMS": "LLMs", "NLP": "NLP",
	"RL": "RL", "RLHF": "RLHF", "ML": "ML", "GPT": "GPT", "GAN": "GAN",
	"KBQA": "KBQA", "SQL": "SQL", "GUI": "GUI", "API": "API", "RAG": "RAG",
}

// minorWords stay lower-case unless first or last in the title.
var minorWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "but": true,
	"for": true, "at": true, "by": true, "from": true, "in": true,
	"into": true, "of": true, "off": true, "on": true, "onto": true,
	"out": true, "over": true, "up": true, "with": true, "as": true,
	"to": true,
}

var (
	sourceSuffixRe = regexp.MustCompile(` \| .*$`)
	parenYearRe    = regexp.MustCompile(`\(\d{4}\)`)
	bracketYearRe  = regexp.MustCompile(`\[\d{4}\]`)
	isoDateRe      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	junkRe         = regexp.MustCompile(`[|*~]`)
	nonWordRe      = regexp.MustCompile(`[^\p{L}\p{N}]`)
	leadPunctRe    = regexp.MustCompile(`^[^\p{L}\p{N}]*`)
	trailPunctRe   = regexp.MustCompile(`[^\p{L}\p{N}]*$`)
	reservedRe     = regexp.MustCompile(`[<>:"/\\|?*_]`)
)

// TitleCase converts a scraped title to Title Case: source suffixes and
// embedded dates removed, separators collapsed to spaces, minor words
// lowered, acronyms kept upper-case.
func TitleCase(text string) string {
	if text == "" {
		return ""
	}

	text = sourceSuffixRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "Microsoft Word - ", "")
	text = parenYearRe.ReplaceAllString(text, "")
	text = bracketYearRe.ReplaceAllString(text, "")
	text = isoDateRe.ReplaceAllString(text, "")
	text = junkRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "_", " ")
	text = strings.ReplaceAll(text, "-", " ")

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	out := make([]string, 0, len(words))
	for i, word := range words {
		bare := strings.ToUpper(nonWordRe.ReplaceAllString(word, ""))
		if canonical, ok := acronyms[bare]; ok {
			prefix := leadPunctRe.FindString(word)
			suffix := trailPunctRe.FindString(word)
			out = append(out, prefix+canonical+suffix)
			continue
		}

		lower := strings.ToLower(nonWordRe.ReplaceAllString(word, ""))
		if i != 0 && i != len(words)-1 && minorWords[lower] {
			out = append(out, strings.ToLower(word))
			continue
		}
		if upperCount(word) > 1 && len(word) > 1 {
			// Mostly-uppercase word, assume an acronym we don't know.
			out = append(out, word)
			continue
		}
		out = append(out, capitalize(word))
	}
	return strings.Join(out, " ")
}

// SanitizeFilename builds a filesystem-safe filename from a title:
// Title Case, reserved characters and underscores replaced, whitespace
// collapsed, truncated to 150 characters. Empty titles become
// "Untitled Paper". The extension (e.g. ".pdf") is appended verbatim.
func SanitizeFilename(title, extension string) string {
	clean := TitleCase(title)
	safe := reservedRe.ReplaceAllString(clean, " ")
	safe = strings.Join(strings.Fields(safe), " ")
	if len(safe) > 150 {
		safe = strings.TrimSpace(safe[:150])
	}
	if safe == "" {
		safe = "Untitled Paper"
	}
	return safe + extension
}

func upperCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			n++
		}
	}
	return n
}

func capitalize(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			for j := i + 1; j < len(runes); j++ {
				runes[j] = unicode.ToLower(runes[j])
			}
			break
		}
	}
	return string(runes)
}
