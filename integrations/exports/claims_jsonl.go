package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ClaimsJSONL builds a JSON Lines export for the supplied claim receipts and
// returns the serialised payload alongside a checksum.
func ClaimsJSONL(receipts []ClaimReceipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, receipt := range receipts {
		payload := map[string]interface{}{
			"id":         receipt.ID,
			"holder":     receipt.Holder.String(),
			"points":     receipt.Points,
			"amount":     receipt.amount(),
			"claimed_at": receipt.claimedAt(),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
