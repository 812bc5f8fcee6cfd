package stakingd

import (
	"log/slog"
	"time"

	"nftstake/core/events"
	"nftstake/crypto"
	"nftstake/integrations/webhooks"
	"nftstake/observability"
)

// ClaimQueue accepts claim payloads for asynchronous delivery.
type ClaimQueue interface {
	EnqueueClaim(webhooks.ClaimPayload) error
}

// claimNotifier forwards settled claims to the payout webhook.
type claimNotifier struct {
	queue    ClaimQueue
	decimals uint8
	logger   *slog.Logger
}

func newClaimNotifier(queue ClaimQueue, decimals uint8, logger *slog.Logger) *claimNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &claimNotifier{queue: queue, decimals: decimals, logger: logger}
}

func (n *claimNotifier) Emit(evt events.Event) {
	claim, ok := evt.(events.RewardsClaimed)
	if !ok || n == nil || n.queue == nil {
		return
	}
	payload := webhooks.ClaimPayload{
		Holder: crypto.MustNewAddress(crypto.HolderPrefix, claim.Holder[:]).String(),
		Points: claim.Payout,
		Amount: PayoutAmount(claim.Payout, n.decimals).Dec(),
	}
	if claim.ClaimedAt > 0 {
		payload.ClaimedAt = time.Unix(claim.ClaimedAt, 0).UTC()
	}
	if err := n.queue.EnqueueClaim(payload); err != nil {
		n.logger.Error("claim webhook enqueue failed",
			slog.String("holder", payload.Holder), slog.Any("error", err))
	}
}

// eventCounter counts emitted events by type.
type eventCounter struct{}

func (eventCounter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
}
