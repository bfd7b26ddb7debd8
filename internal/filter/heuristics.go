// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"regexp"
	"strings"
)

// defaultExclusions is always applied, before any user terms. Job
// postings, aggregator idioms, marketing copy, and industry domains that
// routinely false-positive on safety keywords.
var defaultExclusions = []string{
	// Job postings and career pages.
	"job opening", "job opportunity", "career opportunity", "now hiring",
	"join our team", "we are hiring", "apply now", "position available",
	"careers at", "job posting", "employment opportunity", "vacancy",
	"job application", "submit resume", "submit cv",

	// Link aggregator phrases.
	"weekly roundup", "daily roundup", "news roundup", "link roundup",
	"this week in", "latest links", "curated links", "recommended reading",

	// Marketing and advertising language.
	"buy now", "subscribe now", "sign up today", "free trial",
	"limited time offer", "special offer", "pricing plans",
	"request a demo", "schedule a demo", "contact sales",
	"product features", "why choose us", "our solutions",

	// Industry domains outside scope.
	"automotive", "self-driving car", "autonomous vehicle",
	"medical imaging", "medical diagnosis", "clinical trial", "surgical", "patient care",
	"cancer detection", "tumor", "radiology", "pathology",
	"agriculture", "crop", "farming", "livestock",
	"financial trading", "stock market", "portfolio management",
	"supply chain", "logistics", "warehouse",
	"wireless network", "5g network", "telecommunications",
	"video game", "game ai", "game playing",
	"recommendation system", "movie recommendation", "product recommendation",
	"weather forecast", "climate model",
}

// aggregatorTitleKeywords in a title flag probable link collections.
var aggregatorTitleKeywords = []string{
	"roundup", "weekly links", "daily links", "news digest",
	"link collection", "reading list",
}

// researchIndicators suggest genuine research content; three or more in
// a reasonably long abstract exempt it from aggregator rejection.
var researchIndicators = []string{
	"method", "experiment", "result", "conclusion", "analysis",
	"dataset", "model", "algorithm", "evaluation", "approach",
	"propose", "demonstrate", "show that", "find that", "performance",
	"accuracy", "training", "tested", "measured", "compared",
}

// marketingPhrases, two or more of which mark advertising copy.
var marketingPhrases = []string{
	"free trial", "buy now", "sign up", "subscribe",
	"request demo", "contact sales", "pricing", "plans",
	"why choose", "our solution", "best-in-class",
	"industry-leading", "cutting-edge solution",
}

var productAnnouncementKeywords = []string{"announcing", "introducing", "launches", "unveils"}
var productSolutionKeywords = []string{"solution", "platform", "service", "tool"}

var urlPatternRe = regexp.MustCompile(`https?://|www\.|\[.*?\]\(.*?\)`)

// isLinkAggregator detects content that is primarily a link collection:
// aggregator title with no real abstract, or short text dominated by
// URLs or list markers. Abstracts with several research indicators are
// exempt from the density checks.
func isLinkAggregator(title, abstract, content string) bool {
	titleLower := strings.ToLower(title)

	for _, kw := range aggregatorTitleKeywords {
		if strings.Contains(titleLower, kw) {
			if len(strings.TrimSpace(abstract)) < 100 {
				return true
			}
		}
	}

	if abstract == "" {
		return false
	}

	wordCount := len(strings.Fields(abstract))
	urls := len(urlPatternRe.FindAllString(abstract, -1))

	indicators := 0
	for _, ind := range researchIndicators {
		if strings.Contains(content, ind) {
			indicators++
		}
	}
	if indicators >= 3 && wordCount >= 150 {
		return false
	}

	if wordCount > 0 && wordCount < 300 {
		if float64(urls)/float64(wordCount) > 0.40 {
			return true
		}
	}

	if wordCount < 500 && urls >= 10 {
		listMarkers := strings.Count(abstract, "\n-") +
			strings.Count(abstract, "\n*") +
			strings.Count(abstract, "\n1.")
		if listMarkers >= 5 {
			return true
		}
	}

	return false
}

// isMarketingContent detects advertising: multiple marketing phrases, or
// a product-announcement title with no substantive abstract.
func isMarketingContent(title, abstract, content string) bool {
	count := 0
	for _, phrase := range marketingPhrases {
		if strings.Contains(content, phrase) {
			count++
		}
	}
	if count >= 2 {
		return true
	}

	titleLower := strings.ToLower(title)
	announcement := false
	for _, pk := range productAnnouncementKeywords {
		if strings.Contains(titleLower, pk) {
			announcement = true
			break
		}
	}
	if announcement {
		for _, sk := range productSolutionKeywords {
			if strings.Contains(titleLower, sk) {
				if len(strings.Fields(abstract)) < 150 {
					return true
				}
				break
			}
		}
	}

	return false
}
