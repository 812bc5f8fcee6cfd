package exports

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"nftstake/native/nftstake"
)

func sampleReceipt(points uint32) ClaimReceipt {
	var holder nftstake.HolderID
	holder[19] = byte(points)
	amount := new(uint256.Int).Mul(uint256.NewInt(uint64(points)), uint256.NewInt(1_000_000))
	return ClaimReceipt{
		ID:        "c0ffee",
		Holder:    holder,
		Points:    points,
		Amount:    amount,
		ClaimedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestClaimsCSV(t *testing.T) {
	data, checksum, err := ClaimsCSV([]ClaimReceipt{sampleReceipt(10)})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch")
	}
	output := string(data)
	if !strings.HasPrefix(output, "id,holder,points,amount,claimed_at\n") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, ",10,10000000,2023-11-14T22:13:20Z") {
		t.Fatalf("unexpected row: %s", output)
	}
	if !strings.Contains(output, "stk1") {
		t.Fatalf("holder should be bech32: %s", output)
	}
}

func TestClaimsJSONL(t *testing.T) {
	receipt := sampleReceipt(25)
	receipt.Amount = nil
	data, checksum, err := ClaimsJSONL([]ClaimReceipt{receipt, sampleReceipt(3)})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"points":25`) || !strings.Contains(lines[0], `"amount":"0"`) {
		t.Fatalf("unexpected payload: %s", lines[0])
	}
}
