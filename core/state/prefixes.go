package state

var (
	stakeConfigKeyBytes = []byte("nftstake/config")
	stakeHolderPrefix   = []byte("nftstake/holder/")
	stakeLockPrefix     = []byte("nftstake/lock/")
)
