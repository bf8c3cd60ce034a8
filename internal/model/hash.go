package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainRecord separates record etags from any other hash in the system.
// The version suffix allows a future algorithm migration.
const DomainRecord = "sfcpath/record/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ETag computes the content etag for a canonical record body.
// Two writes of identical content produce the same etag, so a conditional
// write succeeds exactly when the stored content is what the writer read.
func ETag(kind string, body []byte) string {
	return hashWithDomain(DomainRecord+"/"+kind, body)
}
