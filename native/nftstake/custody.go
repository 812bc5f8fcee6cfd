package nftstake

import (
	"context"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Custody is the asset-custody service. Implementations must fail loudly;
// a nil error means the action took effect.
type Custody interface {
	// VerifyCollection reports whether item is a verified member of collection.
	VerifyCollection(ctx context.Context, item ItemID, collection CollectionID) (bool, error)
	// GrantDelegate lets authority transfer or burn item on behalf of owner.
	GrantDelegate(ctx context.Context, item ItemID, owner HolderID, authority HolderID) error
	// RevokeDelegate removes any delegate authority over item.
	RevokeDelegate(ctx context.Context, item ItemID, owner HolderID) error
	// Freeze blocks transfer and burn of item. Only the delegate may freeze.
	Freeze(ctx context.Context, item ItemID, authority HolderID) error
	// Thaw lifts a freeze. Only the delegate that froze the item may thaw it.
	// Thawing an item that is not frozen succeeds without effect, so an
	// unlock interrupted after its thaw can be retried.
	Thaw(ctx context.Context, item ItemID, authority HolderID) error
}

var lockAuthoritySeed = []byte("nftstake/authority")

// DeriveLockAuthority returns the account the engine delegates custody of
// item to. It is a pure function of the configuration and the item, so the
// same authority is recovered at unlock time without being stored.
func DeriveLockAuthority(cfg ConfigID, item ItemID) HolderID {
	digest := ethcrypto.Keccak256(lockAuthoritySeed, item[:], cfg[:])
	var out HolderID
	copy(out[:], digest[len(digest)-len(out):])
	return out
}
