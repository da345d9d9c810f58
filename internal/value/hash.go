package value

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed hashing. Hashing different
// record kinds under distinct domains prevents a state digest from ever
// colliding with, say, a frame digest over the same bytes. The version
// suffix leaves room for algorithm migration.
const (
	DomainState  = "lockstep/state/v1"
	DomainFrame  = "lockstep/frame/v1"
	DomainSignal = "lockstep/signal/v1"
	DomainEvent  = "lockstep/netevent/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase
// hex. The null separator keeps the domain/data boundary unambiguous.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue hashes one value's canonical encoding under a domain.
func HashValue(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return HashWithDomain(domain, canonical), nil
}
