package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix leaves room
// for a future algorithm change.
const (
	DomainFile    = "dryrun/file/v1"
	DomainMessage = "dryrun/message/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FileDigest computes the content address of a virtual file.
func FileDigest(content []byte) string {
	return hashWithDomain(DomainFile, content)
}

// MessageDigest computes the digest of a virtual message document.
// Returns error if the document cannot be canonically marshaled.
func MessageDigest(document Object) (string, error) {
	canonical, err := MarshalCanonical(document)
	if err != nil {
		return "", fmt.Errorf("MessageDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}
