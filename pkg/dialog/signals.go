package dialog

import (
	"fmt"
	"regexp"
	"strings"
)

// ExitSignal identifies why passive listening ended.
type ExitSignal string

// Exit signals in priority order, highest first. The first matching
// signal per turn wins.
const (
	SignalNone                ExitSignal = ""
	SignalDirectAddress       ExitSignal = "direct_address"
	SignalCompletionPhrase    ExitSignal = "completion_phrase"
	SignalVerificationRequest ExitSignal = "verification_request"
	SignalExplicitExit        ExitSignal = "explicit_exit"
	SignalSocialClosing       ExitSignal = "social_closing"
	SignalSilence             ExitSignal = "silence"
)

var completionPhrases = []string{
	"that's all",
	"that is all",
	"that's everything",
	"that is everything",
	"we're done",
	"we are done",
	"any questions",
	"nothing else",
	"that covers everything",
}

// completionExclusions soften an otherwise-final phrase.
var completionExclusions = []string{
	"almost",
	"done with this",
}

var verificationPhrases = []string{
	"did you get",
	"did you capture",
	"did you catch",
	"did you hear",
	"can you repeat",
	"what did you get",
}

var explicitExitPhrases = []string{
	"exit passive",
	"stop listening",
}

var socialClosings = []string{
	"good luck",
	"take care",
	"feel better",
	"get well",
	"have a good",
}

// Detector matches exit signals against completed user turns.
type Detector struct {
	leadingAddress  *regexp.Regexp
	trailingAddress *regexp.Regexp
	exclusions      []string
}

// NewDetector builds a detector for the given spoken agent name.
func NewDetector(agentName string) *Detector {
	name := regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(agentName)))
	return &Detector{
		leadingAddress:  regexp.MustCompile(fmt.Sprintf(`^%s([\s,.!?:]|$)`, name)),
		trailingAddress: regexp.MustCompile(fmt.Sprintf(`[\s,]%s[.!?,]*$`, name)),
		exclusions: []string{
			"ask " + agentNameLower(agentName),
			"tell " + agentNameLower(agentName),
			agentNameLower(agentName) + " is",
			agentNameLower(agentName) + " mentioned",
			agentNameLower(agentName) + " said",
		},
	}
}

func agentNameLower(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Detect returns the highest-priority exit signal in the turn, or
// SignalNone. collected is the number of instructions captured so far;
// social closings only fire once something has been collected.
func (d *Detector) Detect(text string, collected int) ExitSignal {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return SignalNone
	}

	if d.isDirectAddress(lower) {
		return SignalDirectAddress
	}
	if containsAny(lower, completionPhrases) && !containsAny(lower, completionExclusions) {
		return SignalCompletionPhrase
	}
	if containsAny(lower, verificationPhrases) {
		return SignalVerificationRequest
	}
	if containsAny(lower, explicitExitPhrases) {
		return SignalExplicitExit
	}
	if collected > 0 && containsAny(lower, socialClosings) {
		return SignalSocialClosing
	}
	return SignalNone
}

// isDirectAddress matches a leading or trailing mention of the agent's
// name, excluding contextual mentions like "ask maya" or "maya is".
func (d *Detector) isDirectAddress(lower string) bool {
	for _, excl := range d.exclusions {
		if strings.Contains(lower, excl) {
			return false
		}
	}
	return d.leadingAddress.MatchString(lower) || d.trailingAddress.MatchString(lower)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
