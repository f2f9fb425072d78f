package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed = errors.New("code hashing failed")
	ErrCodeMismatch  = errors.New("verification code mismatch")
)

// CodeLength is the number of digits in a channel verification code.
const CodeLength = 6

// CodeHasher hashes and checks short verification codes.
type CodeHasher interface {
	Hash(code string) (string, error)
	Compare(hashedCode, code string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new code hasher using bcrypt
func NewBcryptHasher(cost int) CodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("code is empty")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(code), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedCode, code string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(strings.TrimSpace(code))); err != nil {
		return ErrCodeMismatch
	}
	return nil
}

// GenerateCode returns a random numeric code of CodeLength digits.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
