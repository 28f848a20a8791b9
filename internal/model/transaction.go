package model

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"
)

// Transaction is the one explicit record type the engine operates on. Sources
// (CSV loaders, API handlers) normalize into it at the boundary; the core
// never branches on record shape.
type Transaction struct {
	Date              time.Time
	ID                string
	Description       string // Raw statement description
	MerchantSignature string // Normalized merchant key, derived from Description
	Type              string // Optional source hint (e.g. DEBIT, DD, POS)
	Amount            float64
}

// FieldValue reads a named field as a string for rule matching. The second
// return is false when the field is unknown or unset.
func (t *Transaction) FieldValue(name string) (string, bool) {
	switch name {
	case "description":
		return t.Description, t.Description != ""
	case FieldMerchantSignature:
		return t.MerchantSignature, t.MerchantSignature != ""
	case "type":
		return t.Type, t.Type != ""
	case "amount":
		return strconv.FormatFloat(t.Amount, 'f', 2, 64), true
	case "date":
		if t.Date.IsZero() {
			return "", false
		}
		return t.Date.Format("2006-01-02"), true
	default:
		return "", false
	}
}

// GenerateHash creates a stable hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
