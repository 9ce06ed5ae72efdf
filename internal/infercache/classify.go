package infercache

import (
	"strings"
	"time"
)

// PromptClass drives the cache TTL and the option heuristics. The TTL is a
// property of the content classification, not one global constant.
type PromptClass string

const (
	ClassFactual  PromptClass = "factual"
	ClassCreative PromptClass = "creative"
	ClassDefault  PromptClass = "default"
)

var factualMarkers = []string{
	"what is", "what are", "who is", "who was", "when did", "when was",
	"where is", "how many", "how much", "capital of", "define ", "definition of",
	"list the", "name the",
}

var creativeMarkers = []string{
	"write a", "write me", "compose", "imagine", "story", "poem", "haiku",
	"song", "lyrics", "fiction", "creative", "brainstorm", "invent",
}

// ClassifyPrompt buckets a prompt with lightweight keyword heuristics.
// Creative markers win over factual ones so "write a story about who is
// buried in Grant's tomb" stays short-lived.
func ClassifyPrompt(prompt string) PromptClass {
	p := strings.ToLower(prompt)
	for _, m := range creativeMarkers {
		if strings.Contains(p, m) {
			return ClassCreative
		}
	}
	for _, m := range factualMarkers {
		if strings.Contains(p, m) {
			return ClassFactual
		}
	}
	return ClassDefault
}

// ttlFor maps a class onto its configured TTL.
func (c Config) ttlFor(class PromptClass) time.Duration {
	switch class {
	case ClassFactual:
		return c.FactualTTL
	case ClassCreative:
		return c.CreativeTTL
	default:
		return c.DefaultTTL
	}
}
