package invoicing

import (
	"fmt"
	"strconv"
	"strings"
)

type DocumentType string

const (
	DocumentInvoice         DocumentType = "INVOICE"
	DocumentSupportDocument DocumentType = "SUPPORT_DOCUMENT"
	DocumentPOSSale         DocumentType = "POS_SALE"
)

var documentPrefixes = map[DocumentType]string{
	DocumentInvoice:         "INV",
	DocumentSupportDocument: "DS",
	DocumentPOSSale:         "POS",
}

// Prefix returns the number prefix of a document type.
func (d DocumentType) Prefix() string {
	return documentPrefixes[d]
}

const sequenceWidth = 5

// FormatDocumentNumber renders PREFIX-00042; numbers wider than 5 digits are kept whole.
func FormatDocumentNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, sequenceWidth, n)
}

// ParseDocumentNumber extracts the counter from a number issued with prefix.
func ParseDocumentNumber(prefix, number string) (int64, error) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok || rest == "" {
		return 0, fmt.Errorf("document number %q does not carry prefix %q", number, prefix)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("document number %q has no numeric counter", number)
	}
	return n, nil
}

// SequenceGenerator derives the next number from the last one visible in the caller's
// transaction. It holds no state: the database snapshot is the only source of truth.
type SequenceGenerator struct{}

func (SequenceGenerator) Next(tx Tx, tenantID, prefix string) (string, error) {
	last, err := tx.LastDocumentNumber(tenantID, prefix)
	if err != nil {
		return "", fmt.Errorf("read last document number: %w", err)
	}
	var n int64
	if last != "" {
		if n, err = ParseDocumentNumber(prefix, last); err != nil {
			return "", err
		}
	}
	return FormatDocumentNumber(prefix, n+1), nil
}
