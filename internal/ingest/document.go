package ingest

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrUndecodable is returned for documents that are neither valid UTF-8 nor
// in a declared, supported charset.
var ErrUndecodable = eris.New("ingest: document is not decodable text")

var (
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	declEncoder = regexp.MustCompile(`^(\s*<\?xml[^>]*?\bencoding\s*=\s*["'])([A-Za-z0-9._:-]+)(["'])`)
)

// decodeDocument returns the document as UTF-8 text. Documents declaring
// another charset (ISO-8859-1 is common among older issuers) are transcoded
// and their declaration rewritten to match.
func decodeDocument(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	label := ""
	if m := declEncoder.FindSubmatch(raw); m != nil {
		label = strings.ToLower(string(m[2]))
	}
	if label == "" || label == "utf-8" || label == "utf8" {
		if !utf8.Valid(raw) {
			return "", eris.Wrap(ErrUndecodable, "ingest: invalid UTF-8")
		}
		return string(raw), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", eris.Wrapf(ErrUndecodable, "ingest: unsupported charset %q", label)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", eris.Wrapf(ErrUndecodable, "ingest: decode %s: %v", label, err)
	}
	out = declEncoder.ReplaceAll(out, []byte("${1}UTF-8${3}"))
	return string(out), nil
}
