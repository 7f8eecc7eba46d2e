package codes

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmName = "argon2id"

	defaultMemoryKiB   = 64 * 1024
	defaultIterations  = 3
	defaultParallelism = 1
	defaultSaltLength  = 16
	defaultKeyLength   = 32

	// Upper bounds applied to parameters read back from stored digests.
	maxDigestMemoryKiB   = 1024 * 1024
	maxDigestIterations  = 32
	maxDigestParallelism = 16
	minDigestSaltLength  = 8
	minDigestKeyLength   = 16
	maxDigestKeyLength   = 64
)

var (
	// ErrInvalidHashParams indicates the Argon2id cost parameters are unusable.
	ErrInvalidHashParams = errors.New("codes: invalid hash parameters")
	// ErrEmptyPlaintext indicates an attempt to hash an empty secret.
	ErrEmptyPlaintext = errors.New("codes: plaintext is empty")

	errMalformedDigest = errors.New("codes: malformed digest")
)

// HashParams tunes the Argon2id cost.
type HashParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams returns 64 MiB memory, 3 iterations and a single lane.
func DefaultHashParams() HashParams {
	return HashParams{
		MemoryKiB:   defaultMemoryKiB,
		Iterations:  defaultIterations,
		Parallelism: defaultParallelism,
		SaltLength:  defaultSaltLength,
		KeyLength:   defaultKeyLength,
	}
}

func (p HashParams) validate() error {
	if p.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidHashParams)
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("%w: parallelism must be positive", ErrInvalidHashParams)
	}
	if p.MemoryKiB < 8*uint32(p.Parallelism) {
		return fmt.Errorf("%w: memory must be at least 8 KiB per lane", ErrInvalidHashParams)
	}
	if p.SaltLength < minDigestSaltLength {
		return fmt.Errorf("%w: salt length below %d bytes", ErrInvalidHashParams, minDigestSaltLength)
	}
	if p.KeyLength < minDigestKeyLength || p.KeyLength > maxDigestKeyLength {
		return fmt.Errorf("%w: key length outside %d..%d bytes", ErrInvalidHashParams, minDigestKeyLength, maxDigestKeyLength)
	}
	return nil
}

// Hasher produces and checks Argon2id digests in PHC string format.
type Hasher struct {
	params  HashParams
	entropy io.Reader
}

// NewHasher validates params and returns a Hasher salting from crypto/rand.
func NewHasher(params HashParams) (*Hasher, error) {
	if params.SaltLength == 0 {
		params.SaltLength = defaultSaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = defaultKeyLength
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: params, entropy: rand.Reader}, nil
}

// Params exposes the cost parameters used for new digests.
func (h *Hasher) Params() HashParams {
	return h.params
}

// Hash derives a salted digest such as
// "$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>".
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.entropy, salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmName,
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether candidate hashes to digest. The parameters embedded in
// the digest are used, so cost changes do not invalidate stored codes. Malformed
// digests verify as false.
func (h *Hasher) Verify(digest, candidate string) bool {
	params, salt, key, err := decodeDigest(digest)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(candidate), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, derived) == 1
}

func decodeDigest(digest string) (HashParams, []byte, []byte, error) {
	segments := strings.Split(digest, "$")
	if len(segments) != 6 || segments[0] != "" || segments[1] != algorithmName {
		return HashParams{}, nil, nil, errMalformedDigest
	}
	if segments[2] != "v="+strconv.Itoa(argon2.Version) {
		return HashParams{}, nil, nil, errMalformedDigest
	}

	var params HashParams
	for _, pair := range strings.Split(segments[3], ",") {
		name, rawValue, found := strings.Cut(pair, "=")
		if !found {
			return HashParams{}, nil, nil, errMalformedDigest
		}
		value, err := strconv.ParseUint(rawValue, 10, 32)
		if err != nil {
			return HashParams{}, nil, nil, errMalformedDigest
		}
		switch name {
		case "m":
			params.MemoryKiB = uint32(value)
		case "t":
			params.Iterations = uint32(value)
		case "p":
			if value > maxDigestParallelism {
				return HashParams{}, nil, nil, errMalformedDigest
			}
			params.Parallelism = uint8(value)
		default:
			return HashParams{}, nil, nil, errMalformedDigest
		}
	}
	if params.MemoryKiB > maxDigestMemoryKiB || params.Iterations > maxDigestIterations {
		return HashParams{}, nil, nil, errMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(segments[4])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(segments[5])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedDigest
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))
	if err := params.validate(); err != nil {
		return HashParams{}, nil, nil, errMalformedDigest
	}
	return params, salt, key, nil
}
