package order

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/go-faster/errors"
)

const (
	codeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength      = 4
	maxCodeAttempts = 10
)

var (
	// ErrCodeConflict is returned by Writer.InsertOrder when the code is taken.
	ErrCodeConflict = errors.New("order code already in use")
	// ErrCodeExhausted is returned when no free order code was found.
	ErrCodeExhausted = errors.New("order code attempts exhausted")
)

// CodeGenerator assigns short pickup codes to orders.
type CodeGenerator struct {
	next func() string
}

// NewCodeGenerator returns a CodeGenerator drawing codes from crypto/rand.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{next: randomCode}
}

// Generate returns a random 4 character code over [0-9A-Z].
func (g *CodeGenerator) Generate() string {
	return g.next()
}

// CreateWithUniqueCode inserts o with a fresh code, drawing a new one each
// time the writer reports a collision.
func (g *CodeGenerator) CreateWithUniqueCode(ctx context.Context, w Writer, o *Order) error {
	for range maxCodeAttempts {
		o.Code = g.Generate()
		err := w.InsertOrder(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCodeConflict) {
			return errors.Wrap(err, "insert order")
		}
	}
	o.Code = ""
	return ErrCodeExhausted
}

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic(errors.Wrap(err, "read random"))
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
