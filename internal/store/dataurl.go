// Data URL codec. Payloads travel in memory as base64 data URLs and at rest
// as binary blobs; MIME normalization means a data URL does not re-derive
// byte-identically in general, but the decoded binary content does.

package store

import (
	"encoding/base64"
	"strings"
)

const defaultMimeType = "application/octet-stream"

// EncodeDataURL builds a base64 data URL for the payload.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL decodes a base64 data URL into its MIME type and payload.
// Anything that is not a well-formed base64 data URL reports ok=false and
// is left alone by the caller, which is what makes extraction idempotent.
func DecodeDataURL(s string) (mimeType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return "", nil, false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", nil, false
	}
	mimeType, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return "", nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return mimeType, decoded, true
}

// IsDataURL reports whether s is a well-formed base64 data URL.
func IsDataURL(s string) bool {
	_, _, ok := DecodeDataURL(s)
	return ok
}
