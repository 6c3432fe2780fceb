// Package bot routes classified messages to their handlers and implements
// the balance-metered AI query pipeline.
package bot

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vnmchuo/whatspay/internal/billing"
	"github.com/vnmchuo/whatspay/internal/intent"
	"github.com/vnmchuo/whatspay/internal/provider"
	"github.com/vnmchuo/whatspay/internal/state"
	"github.com/vnmchuo/whatspay/internal/wallet"
)

const maxInputLength = 2000

type Bot struct {
	store      *state.Store
	addresses  *wallet.Addresses
	classifier *intent.Classifier
	llm        provider.Client  // nil when no provider key is configured
	archive    *billing.Archive // nil when the usage archive is disabled

	model            string
	costPer100Tokens float64
	log              zerolog.Logger
}

func New(store *state.Store, addresses *wallet.Addresses, classifier *intent.Classifier, llm provider.Client, archive *billing.Archive, model string, costPer100Tokens float64, log zerolog.Logger) *Bot {
	return &Bot{
		store:            store,
		addresses:        addresses,
		classifier:       classifier,
		llm:              llm,
		archive:          archive,
		model:            model,
		costPer100Tokens: costPer100Tokens,
		log:              log.With().Str("component", "bot").Logger(),
	}
}

// HandleMessage classifies and dispatches one inbound message, returning
// the reply to send. Handler-level failures (model errors, unparsable
// amounts, insufficient balance) become reply text, not errors; an error
// return means the gateway should apologize and answer 500.
func (b *Bot) HandleMessage(ctx context.Context, sender, body string) (string, error) {
	it := b.classifier.Classify(ctx, body)
	b.log.Info().Str("sender", sender).Str("intent", string(it)).Msg("message classified")

	switch it {
	case intent.Payment:
		return b.handlePayment(sender, body), nil
	case intent.Balance:
		return b.handleBalance(ctx, sender), nil
	case intent.Help:
		return helpText, nil
	default:
		return b.handleAIQuery(ctx, sender, body), nil
	}
}

// handleAIQuery meters a model call against the sender's balance. The gate
// uses a conservative estimate; the debit uses the actual cost, which may
// modestly exceed what the gate saw. Nothing is charged unless the model
// call succeeds.
func (b *Bot) handleAIQuery(ctx context.Context, sender, message string) string {
	if n := utf8.RuneCountInString(message); n > maxInputLength {
		return fmt.Sprintf(
			"❌ Your message is too long (%d characters). Please keep it under %d characters.",
			n, maxInputLength,
		)
	}

	inputEstimate := billing.EstimateTokens(message)
	outputEstimate := billing.EstimateOutputTokens(inputEstimate)
	estimatedCost := billing.Cost(inputEstimate, outputEstimate, b.costPer100Tokens)

	balance := b.store.Balance(sender)
	if balance < estimatedCost {
		return fmt.Sprintf(
			"💰 Insufficient balance.\n\n"+
				"Estimated cost: %.4f HTR\n"+
				"Your balance: %.4f HTR\n"+
				"Needed: %.4f HTR\n\n"+
				"Type 'top up 1 HTR' to add funds.",
			estimatedCost, balance, estimatedCost-balance,
		)
	}

	if b.llm == nil {
		return "❌ The AI service is not available right now. Please try again later."
	}

	resp, err := b.llm.Complete(ctx, &provider.Request{
		Model: b.model,
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: message},
		},
		MaxTokens:   billing.MaxOutputTokens,
		Temperature: 0.7,
	})
	if err != nil {
		b.log.Error().Err(err).Str("sender", sender).Msg("model call failed")
		return fmt.Sprintf("❌ AI service error: %v", err)
	}

	inputTokens := resp.InputTokens
	if inputTokens == 0 {
		inputTokens = billing.EstimateTokens(message)
	}
	outputTokens := resp.OutputTokens
	if outputTokens == 0 {
		outputTokens = billing.EstimateTokens(resp.Content)
	}
	actualCost := billing.Cost(inputTokens, outputTokens, b.costPer100Tokens)

	newBalance := b.store.Debit(sender, actualCost)

	entry := state.UsageEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Kind:         "ai_query",
		Cost:         actualCost,
		TokensUsed:   inputTokens + outputTokens,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Preview:      preview(message),
	}
	b.store.AppendUsage(sender, entry)

	if b.archive != nil {
		go func() {
			if err := b.archive.Insert(context.Background(), sender, entry); err != nil {
				b.log.Error().Err(err).Msg("failed to archive usage entry")
			}
		}()
	}

	b.log.Info().Str("sender", sender).Float64("cost", actualCost).Int("tokens", entry.TokensUsed).Msg("ai query billed")

	return fmt.Sprintf("🤖 %s\n\n💰 Cost: %.4f HTR | Balance: %.4f HTR", resp.Content, actualCost, newBalance)
}

func (b *Bot) handlePayment(sender, message string) string {
	amount, ok := ExtractAmount(message)
	if !ok {
		return paymentInstructions
	}

	address := b.addresses.Get(sender)
	if !b.addresses.Valid(address) {
		b.log.Error().Str("sender", sender).Str("address", address).Msg("derived an invalid deposit address")
		return "❌ Could not prepare a deposit address right now. Please try again later."
	}
	b.store.EnqueueDeposit(address, state.DepositEntry{
		UserID:         sender,
		ExpectedAmount: amount,
		Timestamp:      time.Now(),
	})

	b.log.Info().Str("sender", sender).Float64("amount", amount).Str("address", address).Msg("deposit watch enqueued")

	return fmt.Sprintf(
		"💳 Deposit instructions\n\n"+
			"Please send %g HTR to this address:\n\n"+
			"%s\n\n"+
			"⏱️ Your deposit will be detected and credited automatically within 1-2 minutes.\n"+
			"📱 You'll receive a confirmation message once it is processed.\n\n"+
			"❓ Need help? Just type 'help'.",
		amount, address,
	)
}

func (b *Bot) handleBalance(ctx context.Context, sender string) string {
	balance := b.store.Balance(sender)
	usage := b.store.Usage(sender)

	var totalSpent float64
	for _, e := range usage {
		totalSpent += e.Cost
	}

	// The archive outlives the state file, so when it is enabled its total
	// is the authoritative lifetime spend.
	if b.archive != nil {
		if archived, err := b.archive.TotalSpent(ctx, sender); err == nil {
			totalSpent = archived
		} else {
			b.log.Error().Err(err).Str("sender", sender).Msg("failed to read archived spend")
		}
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	var recentQueries int
	var recentSpent float64
	for _, e := range usage {
		if e.Timestamp.After(cutoff) {
			recentQueries++
			recentSpent += e.Cost
		}
	}

	msg := fmt.Sprintf(
		"💳 Account summary\n\n"+
			"💰 Current balance: %.4f HTR\n"+
			"📊 Total spent: %.4f HTR\n"+
			"🔢 Total queries: %d\n",
		balance, totalSpent, len(usage),
	)
	if recentQueries > 0 {
		msg += fmt.Sprintf("\n📅 Last 24 hours: %d queries, %.4f HTR\n", recentQueries, recentSpent)
	}

	switch {
	case balance <= 0:
		msg += "\n⚠️ Your balance is empty. Type 'top up 1 HTR' to add funds."
	case balance < 0.01:
		msg += "\n⚠️ Your balance is running low. Consider topping up soon."
	default:
		remaining := int(balance/b.costPer100Tokens) * 100
		msg += fmt.Sprintf("\n📈 Estimated remaining tokens: ~%d", remaining)
	}

	return msg
}

// preview keeps the first 50 characters, cut on a rune boundary.
func preview(message string) string {
	runes := []rune(message)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return message
}
