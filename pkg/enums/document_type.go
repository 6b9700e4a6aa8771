package enums

import "fmt"

// DocumentType identifies documents the external generator can produce.
type DocumentType string

const (
	DocumentTypePackingSlip DocumentType = "packing_slip"
	DocumentTypeInvoice     DocumentType = "invoice"
)

var validDocumentTypes = []DocumentType{
	DocumentTypePackingSlip,
	DocumentTypeInvoice,
}

// IsValid reports whether the value is a known DocumentType.
func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocumentType converts raw input into a DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	for _, candidate := range validDocumentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
