// Package deposit watches queued addresses for incoming transactions and
// credits the owning user's balance.
package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnmchuo/whatspay/internal/hathor"
	"github.com/vnmchuo/whatspay/internal/messenger"
	"github.com/vnmchuo/whatspay/internal/state"
)

type NodeClient interface {
	Deposits(ctx context.Context, address string) ([]hathor.Deposit, error)
	AddressBalance(ctx context.Context, address string) (float64, error)
}

type Poller struct {
	store  *state.Store
	node   NodeClient
	sender messenger.Messenger
	maxAge time.Duration // 0 disables expiry
	log    zerolog.Logger
}

func NewPoller(store *state.Store, node NodeClient, sender messenger.Messenger, maxAge time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		store:  store,
		node:   node,
		sender: sender,
		maxAge: maxAge,
		log:    log.With().Str("component", "deposit").Logger(),
	}
}

// Tick processes one snapshot of the deposit queue. A node failure for one
// address is logged and does not stop the others; the failed address stays
// queued and retries next tick until it outlives maxAge. An address is
// dequeued as soon as any deposit is credited; the expected amount is
// advisory and never enforced.
func (p *Poller) Tick(ctx context.Context) {
	for address, entry := range p.store.DepositSnapshot() {
		deposits, err := p.node.Deposits(ctx, address)
		if err != nil {
			attempts, age, ok := p.store.MarkDepositAttempt(address)
			if !ok {
				continue
			}
			p.log.Warn().Err(err).Str("address", address).Int("attempts", attempts).Dur("age", age).Msg("deposit check failed")
			p.expireIfStale(ctx, address, entry, age)
			continue
		}

		credited := false
		for _, d := range deposits {
			balance, ok := p.store.ApplyDeposit(address, d.TxID, d.Amount)
			if !ok {
				continue
			}
			credited = true
			p.log.Info().Str("user", entry.UserID).Str("tx", d.TxID).Float64("amount", d.Amount).Msg("deposit credited")
			p.notify(ctx, entry.UserID, confirmationText(d, balance))
		}

		if credited {
			p.store.RemoveDeposit(address)
			continue
		}

		attempts, age, ok := p.store.MarkDepositAttempt(address)
		if ok {
			p.log.Debug().Str("address", address).Int("attempts", attempts).Msg("no deposit yet")
			p.expireIfStale(ctx, address, entry, age)
		}
	}
}

func (p *Poller) expireIfStale(ctx context.Context, address string, entry state.DepositEntry, age time.Duration) {
	if p.maxAge <= 0 || age <= p.maxAge {
		return
	}
	// Last look before dropping the watch: if the address has received
	// funds that were never credited, this needs an operator, not silence.
	if received, err := p.node.AddressBalance(ctx, address); err == nil && received > 0 {
		p.log.Error().Str("address", address).Str("user", entry.UserID).Float64("received", received).Msg("expiring watch on address with uncredited funds")
	}
	p.store.RemoveDeposit(address)
	p.log.Warn().Str("address", address).Str("user", entry.UserID).Dur("age", age).Msg("deposit watch expired")
	p.notify(ctx, entry.UserID, fmt.Sprintf(
		"⏱️ Your deposit request for %g HTR expired without a payment being detected. "+
			"Type 'top up %g HTR' to try again.",
		entry.ExpectedAmount, entry.ExpectedAmount,
	))
}

func (p *Poller) notify(ctx context.Context, userID, text string) {
	if err := p.sender.Send(ctx, userID, text); err != nil {
		p.log.Error().Err(err).Str("user", userID).Msg("failed to send deposit notification")
	}
}

func confirmationText(d hathor.Deposit, balance float64) string {
	txRef := d.TxID
	if len(txRef) > 16 {
		txRef = txRef[:16] + "..."
	}
	return fmt.Sprintf(
		"✅ Deposit confirmed!\n\n"+
			"💰 Amount: %g HTR\n"+
			"🔗 Transaction: %s\n"+
			"💳 Current balance: %.4f HTR\n\n"+
			"You can now use the AI assistant - just send me any question.",
		d.Amount, txRef, balance,
	)
}
