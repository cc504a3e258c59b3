package collab

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const CodeLength = 6

var ErrCodeNotFound = errors.New("collaboration code not found")

// CodeStore keeps the collaboration codes currently in use.
type CodeStore interface {
	// Reserve binds code to the project for ttl. It returns false if the code is already taken.
	Reserve(ctx context.Context, code string, projectID int, ttl time.Duration) (bool, error)
	// Lookup returns the project bound to code, or ErrCodeNotFound.
	Lookup(ctx context.Context, code string) (int, error)
	Release(ctx context.Context, code string) error
}

var codeMax = big.NewInt(1_000_000)

// NewCode returns a random 6 digit code.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
