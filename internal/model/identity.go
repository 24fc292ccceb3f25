// Package model holds the invoice identity, the tracking records, and the
// run counters shared by every phase.
package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// ArchiveExt is the extension of per-invoice archives in the download area.
	ArchiveExt = ".zip"
	// DocumentExt is the extension of extracted invoice documents.
	DocumentExt = ".xml"
)

// Identity is the composite key of one invoice across every tracking store.
// It must be derivable identically from a table row and from a filename.
type Identity struct {
	DocumentNumber string `json:"numero_documento"`
	Issuer         string `json:"emisor"`
	TotalValue     string `json:"valor_total"`
}

var unsafeNameRe = regexp.MustCompile(`[\\/*?:"<>|\t\n\r]+`)

// NewIdentity builds an Identity from raw cell text, normalizing every field.
func NewIdentity(documentNumber, issuer, totalValue string) Identity {
	return Identity{
		DocumentNumber: NormalizeDocumentNumber(documentNumber),
		Issuer:         NormalizeIssuer(issuer),
		TotalValue:     NormalizeTotal(totalValue),
	}
}

// NormalizeDocumentNumber trims and NFC-normalizes a document number. Runs
// of path-hostile characters become a single hyphen so the number is always
// a plain filename component ("FE/78" -> "FE-78", "../FE-77" -> "..-FE-77").
func NormalizeDocumentNumber(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	return unsafeNameRe.ReplaceAllString(s, "-")
}

// NormalizeIssuer turns an issuer name into a filename-safe token: spaces
// become underscores, periods are dropped and runs of path-hostile characters
// collapse to a single underscore.
func NormalizeIssuer(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ".", "")
	return unsafeNameRe.ReplaceAllString(s, "_")
}

// NormalizeTotal strips thousands separators and decimal points and drops
// everything after the first whitespace run ("1.234,00 COP" -> "123400").
func NormalizeTotal(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Normalize re-applies normalization to an existing identity.
func (id Identity) Normalize() Identity {
	return NewIdentity(id.DocumentNumber, id.Issuer, id.TotalValue)
}

// IsZero reports whether no field is set.
func (id Identity) IsZero() bool {
	return id.DocumentNumber == "" && id.Issuer == "" && id.TotalValue == ""
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", id.DocumentNumber, id.Issuer, id.TotalValue)
}

// ArchiveName is the canonical archive filename for a downloaded invoice.
func (id Identity) ArchiveName() string {
	return id.DocumentNumber + "_" + id.Issuer + ArchiveExt
}

// DocumentName derives the document filename from an archive filename by
// swapping its extension.
func DocumentName(archiveName string) string {
	return strings.TrimSuffix(archiveName, filepath.Ext(archiveName)) + DocumentExt
}

// ParseDocumentName recovers an identity from a document filename by splitting
// its base name into at most three underscore-separated parts. It reports
// false when fewer than three parts are present.
//
// Issuers that contain underscores shift the issuer/value boundary: the
// recovered issuer is only the first underscore-delimited token.
func ParseDocumentName(name string) (Identity, bool) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.SplitN(norm.NFC.String(base), "_", 3)
	if len(parts) < 3 {
		return Identity{}, false
	}
	return Identity{
		DocumentNumber: parts[0],
		Issuer:         parts[1],
		TotalValue:     parts[2],
	}, true
}

// HasExt reports whether name ends in ext, ignoring case.
func HasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}
