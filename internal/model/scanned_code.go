package model

import (
	"strings"
	"time"
)

// ScannedCode is one accepted scan persisted for a store scope.
type ScannedCode struct {
	ID         string    `json:"id"`
	Payload    string    `json:"payload"`
	Symbology  Symbology `json:"symbology"`
	CapturedAt time.Time `json:"captured_at"`
	StoreScope string    `json:"store_scope"`
	CreatedBy  string    `json:"created_by,omitempty"`
	Origin     string    `json:"origin,omitempty"` // client instance that wrote the record
}

// ScanFilter selects scanned codes for listing. Scope is mandatory.
type ScanFilter struct {
	Scope  string
	Limit  int
	Offset int
}

// Symbology is the barcode format reported by the decoder.
type Symbology string

const (
	SymbologyUnknown    Symbology = "unknown_barcode"
	SymbologyEAN13      Symbology = "ean_13"
	SymbologyEAN8       Symbology = "ean_8"
	SymbologyUPCA       Symbology = "upc_a"
	SymbologyUPCE       Symbology = "upc_e"
	SymbologyCode128    Symbology = "code_128"
	SymbologyCode39     Symbology = "code_39"
	SymbologyITF        Symbology = "itf"
	SymbologyQRCode     Symbology = "qr_code"
	SymbologyDataMatrix Symbology = "data_matrix"
	SymbologyAztec      Symbology = "aztec"
	SymbologyPDF417     Symbology = "pdf_417"
)

// String returns the string representation of the symbology.
func (s Symbology) String() string {
	return string(s)
}

// IsMatrix reports whether the symbology is a 2-D code whose payload
// length is inherently variable.
func (s Symbology) IsMatrix() bool {
	switch s {
	case SymbologyQRCode, SymbologyDataMatrix, SymbologyAztec, SymbologyPDF417:
		return true
	}
	return false
}

// symbologyAliases maps decoder spellings that do not normalize cleanly.
var symbologyAliases = map[string]Symbology{
	"barcode":    SymbologyUnknown,
	"unknown":    SymbologyUnknown,
	"qr":         SymbologyQRCode,
	"qrcode":     SymbologyQRCode,
	"ean13":      SymbologyEAN13,
	"ean8":       SymbologyEAN8,
	"upca":       SymbologyUPCA,
	"upce":       SymbologyUPCE,
	"code128":    SymbologyCode128,
	"code39":     SymbologyCode39,
	"datamatrix": SymbologyDataMatrix,
	"pdf417":     SymbologyPDF417,
}

// NormalizeSymbology folds a decoder-reported format name ("EAN_13",
// "QR-Code", "") into a Symbology. Empty input yields SymbologyUnknown.
func NormalizeSymbology(raw string) Symbology {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return SymbologyUnknown
	}
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if alias, ok := symbologyAliases[s]; ok {
		return alias
	}
	return Symbology(s)
}
