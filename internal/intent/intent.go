// Package intent classifies incoming messages into the four intents the
// bot can handle. Classification prefers the model; a deterministic
// keyword pass covers model failures and out-of-set answers.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vnmchuo/whatspay/internal/provider"
)

type Intent string

const (
	Payment Intent = "payment"
	Balance Intent = "balance"
	AIQuery Intent = "ai_query"
	Help    Intent = "help"
)

var intentDescriptions = []struct {
	label Intent
	desc  string
}{
	{Payment, "User wants to top up their account with HTR tokens"},
	{Balance, "User wants to check their account balance or usage"},
	{AIQuery, "User wants to ask AI to process/analyze text or answer questions"},
	{Help, "User needs help or instructions on how to use the service"},
}

// Keyword fallback patterns. Order matters: payment wins over balance wins
// over help; anything unmatched is treated as a free-form AI query.
var (
	paymentPatterns = compileAll(
		`\btop\s*up\b`,
		`\bdeposit\b`,
		`\bpay\b`,
		`\badd\s+money\b`,
		`\bcharge\b`,
		`\bhtr\b`,
		`\btransfer\b`,
		`\bwallet\b`,
	)
	balancePatterns = compileAll(
		`\bbalance\b`,
		`\bhow\s+much\b`,
		`\bcredit\b`,
		`\bspent\b`,
		`\busage\b`,
		`\baccount\b`,
		`\bhistory\b`,
	)
	helpPatterns = compileAll(
		`\bhelp\b`,
		`\bhow\s+to\b`,
		`\binstructions?\b`,
		`\bcommands?\b`,
		`\bwhat\s+can\b`,
		`\bstart\b`,
		`\bguide\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

type Classifier struct {
	llm   provider.Client // nil disables the model path
	model string
	log   zerolog.Logger
}

func NewClassifier(llm provider.Client, model string, log zerolog.Logger) *Classifier {
	return &Classifier{
		llm:   llm,
		model: model,
		log:   log.With().Str("component", "intent").Logger(),
	}
}

func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	if strings.TrimSpace(message) == "" {
		return Help
	}

	if c.llm != nil {
		if label, err := c.classifyWithModel(ctx, message); err == nil {
			c.log.Debug().Str("intent", string(label)).Msg("model classification")
			return label
		} else {
			c.log.Warn().Err(err).Msg("model classification failed, falling back to keywords")
		}
	}

	return classifyWithKeywords(message)
}

func (c *Classifier) classifyWithModel(ctx context.Context, message string) (Intent, error) {
	var b strings.Builder
	b.WriteString("Classify the following WhatsApp message into one of these intents:\n\n")
	for _, it := range intentDescriptions {
		fmt.Fprintf(&b, "- %s: %s\n", it.label, it.desc)
	}
	fmt.Fprintf(&b, "\nMessage: %q\n\n", message)
	b.WriteString("Return only the intent name. If the message doesn't clearly fit any category, return \"ai_query\".")

	resp, err := c.llm.Complete(ctx, &provider.Request{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: "You are an intent classifier for a WhatsApp AI assistant."},
			{Role: "user", Content: b.String()},
		},
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	label := Intent(strings.ToLower(strings.Trim(strings.TrimSpace(resp.Content), `"'.`)))
	switch label {
	case Payment, Balance, AIQuery, Help:
		return label, nil
	}
	return "", fmt.Errorf("model returned unknown intent %q", resp.Content)
}

func classifyWithKeywords(message string) Intent {
	lower := strings.ToLower(message)

	for _, p := range paymentPatterns {
		if p.MatchString(lower) {
			return Payment
		}
	}
	for _, p := range balancePatterns {
		if p.MatchString(lower) {
			return Balance
		}
	}
	for _, p := range helpPatterns {
		if p.MatchString(lower) {
			return Help
		}
	}
	return AIQuery
}
