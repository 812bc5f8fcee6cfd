package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"
)

// ClaimsCSV builds a CSV export for the supplied claim receipts and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func ClaimsCSV(receipts []ClaimReceipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "holder", "points", "amount", "claimed_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, receipt := range receipts {
		record := []string{
			receipt.ID,
			receipt.Holder.String(),
			strconv.FormatUint(uint64(receipt.Points), 10),
			receipt.amount(),
			receipt.claimedAt(),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
