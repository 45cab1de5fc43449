// Package decision applies routing policy to classify an AI response (or
// the absence of one) into a DecisionKind, parsing structured JSON output
// when the mode requires semantic classification.
package decision

import (
	"encoding/json"
	"regexp"
	"strings"

	"conduit/internal/router"
)

var fencedBlock = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n(.*?)\\n?```$")

// Outcome is the result of classifying one AI response.
type Outcome struct {
	Decision  router.Decision
	ReplyText string
}

type rawDecision struct {
	Kind              string  `json:"kind"`
	TaskID            *string `json:"task_id"`
	PrioritySuggested *string `json:"priority_suggested"`
}

type rawAIOutput struct {
	Decision  *rawDecision `json:"decision"`
	ReplyText *string      `json:"reply_text"`
}

func directReply(text string) Outcome {
	return Outcome{Decision: router.Decision{Kind: router.DecisionDirectReply}, ReplyText: text}
}

// Classify applies the rules of §4.4 in order. aiOutput is the raw
// provider output, or "" when no provider was invoked.
func Classify(mode router.Mode, channel router.Channel, aiOutput string) Outcome {
	switch mode {
	case router.ModeDirectOnly:
		return directReply(aiOutput)

	case router.ModeAsyncOnly:
		// Defensive fallback: the Router normally short-circuits async_only
		// before any AI call and never reaches this engine with that mode.
		priority := "normal"
		return Outcome{
			Decision:  router.Decision{Kind: router.DecisionAsyncDraftCreated, PrioritySuggested: &priority},
			ReplyText: aiOutput,
		}

	case router.ModeAuto:
		if channel == router.ChannelAsyncTask {
			return directReply(aiOutput)
		}
		return classifyAuto(aiOutput)

	default:
		return directReply(aiOutput)
	}
}

func classifyAuto(aiOutput string) Outcome {
	parsed, ok := parseStructured(aiOutput)
	if !ok || parsed.Decision == nil {
		// Attempt 3: degradation — treat the whole output as a direct reply.
		return directReply(aiOutput)
	}

	kind := router.DecisionKind(parsed.Decision.Kind)
	if !kind.Valid() {
		kind = router.DecisionDirectReply
	}

	replyText := aiOutput
	if parsed.ReplyText != nil {
		replyText = *parsed.ReplyText
	}

	return Outcome{
		Decision: router.Decision{
			Kind:              kind,
			TaskID:            parsed.Decision.TaskID,
			PrioritySuggested: parsed.Decision.PrioritySuggested,
		},
		ReplyText: replyText,
	}
}

// parseStructured implements the three-attempt parse: whole output after
// stripping one fenced code block, then the first balanced {...}
// substring, then no structured data at all.
func parseStructured(output string) (*rawAIOutput, bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, false
	}

	candidate := trimmed
	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	if parsed, ok := tryUnmarshal(candidate); ok {
		return parsed, true
	}

	if block, ok := firstBalancedObject(trimmed); ok {
		if parsed, ok := tryUnmarshal(block); ok {
			return parsed, true
		}
	}

	return nil, false
}

func tryUnmarshal(s string) (*rawAIOutput, bool) {
	var out rawAIOutput
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	return &out, true
}

// firstBalancedObject scans for the first top-level {...} substring,
// tracking brace depth and skipping braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch r {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
