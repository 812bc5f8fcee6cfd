package nftstake

import (
	"context"
	"log/slog"

	"nftstake/core/events"
)

// Claim settles the holder's accumulated points. It zeroes the balance and
// returns the prior amount; converting that payout into a transferable reward
// is left to the caller. The lock ledger is never touched.
func (e *Engine) Claim(ctx context.Context, holder HolderID) (uint32, error) {
	if err := e.ready(false); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var payout uint32
	err := e.store.Update(func(st State) error {
		var err error
		payout, err = registry{st: st}.resetPoints(holder)
		return err
	})
	if err != nil {
		return 0, err
	}
	now := e.now()
	e.log().Info("rewards claimed",
		slog.String("holder", holder.String()),
		slog.Uint64("payout", uint64(payout)))
	e.emit(events.RewardsClaimed{Holder: holder, Payout: payout, ClaimedAt: now})
	return payout, nil
}
