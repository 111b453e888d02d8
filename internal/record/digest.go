package record

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Digest is a file content digest rendered as a lowercase hex string.
type Digest string

func (d Digest) String() string { return string(d) }

// Short returns an abbreviated form for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// HexDigest converts a raw hash sum into a Digest.
func HexDigest(sum []byte) Digest {
	return Digest(hex.EncodeToString(sum))
}

// Algorithm identifies a supported content-digest algorithm. The zero value
// is not valid; use DefaultAlgorithm or ParseAlgorithm.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512"
	SHA3256 Algorithm = "sha3-256"
)

// DefaultAlgorithm is used when a store is created without an explicit
// choice.
const DefaultAlgorithm = SHA256

// ErrUnknownAlgorithm is returned when an algorithm name is not in the
// registry, for example when a store was written by a build that supported
// more algorithms than this one.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// Algorithms lists the supported algorithm names in a fixed order.
func Algorithms() []string {
	return []string{
		string(MD5),
		string(SHA1),
		string(SHA256),
		string(SHA512),
		string(SHA3256),
	}
}

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, known := range Algorithms() {
		if lowered == known {
			return Algorithm(known), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// New returns a fresh hash state for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	case SHA3256:
		return sha3.New256()
	}
	panic(fmt.Sprintf("record: algorithm %q not in registry", string(a)))
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return md5.Size
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	case SHA3256:
		return 32
	}
	return 0
}

// Sum digests a byte slice in one call. Scan code streams instead; this
// exists for tests and small fixed inputs.
func (a Algorithm) Sum(data []byte) Digest {
	h := a.New()
	h.Write(data)
	return HexDigest(h.Sum(nil))
}

func (a Algorithm) String() string { return string(a) }
