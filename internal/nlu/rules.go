package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/akulikov/regdesk/internal/domain"
)

var (
	emailExtractPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	// Phone extraction requires the leading + so arbitrary numbers in a
	// sentence (dates, house numbers) are not mistaken for phones.
	phoneExtractPattern = regexp.MustCompile(`\+[1-9][0-9]{1,14}`)
)

// intentRule pairs an intent with its trigger words and phrases. Words
// match on word boundaries; phrases match as substrings.
type intentRule struct {
	intent  domain.Intent
	words   *regexp.Regexp
	phrases []string
}

// Rules are checked in order; the first hit wins. Delete comes before
// create so "deregister" is not swallowed by its "register" substring.
var intentRules = []intentRule{
	{
		intent:  domain.IntentDelete,
		words:   regexp.MustCompile(`\b(delete|remove|deregister|unregister)\b`),
		phrases: []string{"delete my", "remove my"},
	},
	{
		intent:  domain.IntentCreate,
		words:   regexp.MustCompile(`\b(create|register|signup|enroll)\b`),
		phrases: []string{"sign up", "new account", "new registration"},
	},
	{
		intent:  domain.IntentUpdate,
		words:   regexp.MustCompile(`\b(update|change|modify|edit)\b`),
		phrases: nil,
	},
	{
		intent:  domain.IntentRead,
		words:   regexp.MustCompile(`\b(read|show|view|get|retrieve|lookup)\b`),
		phrases: []string{"my data", "my info", "my details", "my registration"},
	},
	{
		intent:  domain.IntentHelp,
		words:   regexp.MustCompile(`\b(help|commands)\b`),
		phrases: []string{"what can you do"},
	},
}

// RuleClassifier is a deterministic keyword classifier. It is the default
// when no model API key is configured, and the fallback when the model
// call fails.
type RuleClassifier struct{}

// NewRuleClassifier returns a keyword-based classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify matches trigger words per intent and extracts any inline email
// or phone number.
func (c *RuleClassifier) Classify(_ context.Context, utterance string, _ *domain.Session) (Result, error) {
	lower := strings.ToLower(utterance)

	res := Result{Intent: domain.IntentUnknown, Fields: ExtractFields(utterance)}
	for _, rule := range intentRules {
		if rule.words != nil && rule.words.MatchString(lower) {
			res.Intent = rule.intent
			return res, nil
		}
		for _, p := range rule.phrases {
			if strings.Contains(lower, p) {
				res.Intent = rule.intent
				return res, nil
			}
		}
	}
	return res, nil
}

// ExtractFields pulls inline field values (email, phone) out of an
// utterance. Values are raw and must be re-validated by the caller.
func ExtractFields(utterance string) map[string]string {
	fields := make(map[string]string)
	if m := emailExtractPattern.FindString(utterance); m != "" {
		fields[domain.FieldEmail] = m
	}
	if m := phoneExtractPattern.FindString(utterance); m != "" {
		fields[domain.FieldPhoneNumber] = m
	}
	return fields
}
