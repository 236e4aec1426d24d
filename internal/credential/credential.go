// Package credential generates throwaway account credentials and reconciles
// them with the strength feedback a registration form shows.
package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/observability"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	numberChars = "0123456789"
	// SymbolChars is the symbol class every secret draws at least one character from.
	SymbolChars = "!@#$%^&*"

	// SecretLength is the length of generated secrets.
	SecretLength = 12

	DefaultPrefix = "testuser"
	DefaultDomain = "test.com"

	suffixLen = 16
)

// fallbackSecrets are known to rate as strong on the default storefront.
var fallbackSecrets = []string{
	"StrongPass123!",
	"SecurePwd456@",
	"TestPass789#",
	"Password123$",
	"AdminPass!123",
	"UserPass@456",
	"DemoPass#789",
	"TempPass$012",
}

// Fallbacks returns a copy of the pre-vetted replacement secrets.
func Fallbacks() []string {
	return append([]string(nil), fallbackSecrets...)
}

// Credential is an email/secret pair for a fresh account.
type Credential struct {
	Email  string
	Secret string
}

// Outcome reports how a secret fared against the strength indicator.
type Outcome string

const (
	// Accepted means the indicator rated the generated secret as strong.
	Accepted Outcome = "accepted"
	// Replaced means a fallback secret was submitted once in its place.
	Replaced Outcome = "replaced"
	// Unverified means no indicator could be read; the secret was kept.
	Unverified Outcome = "unverified"
)

// ErrPolicy is wrapped by Validate failures.
var ErrPolicy = errors.New("secret does not satisfy policy")

// Validate checks that secret is at least SecretLength long and carries one
// character from each class.
func Validate(secret string) error {
	if len(secret) < SecretLength {
		return fmt.Errorf("%w: length %d is below %d", ErrPolicy, len(secret), SecretLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SymbolChars, r):
			symbol = true
		}
	}
	var missing []string
	if !upper {
		missing = append(missing, "upper")
	}
	if !lower {
		missing = append(missing, "lower")
	}
	if !digit {
		missing = append(missing, "digit")
	}
	if !symbol {
		missing = append(missing, "symbol")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrPolicy, strings.Join(missing, ", "))
	}
	return nil
}

// Generator produces credentials. It is safe for concurrent use.
type Generator struct {
	prefix string
	domain string
	logger *zap.Logger
	// random is crypto/rand.Reader outside of tests.
	random io.Reader
}

// NewGenerator returns a generator for <prefix>_<suffix>@<domain> addresses.
// Empty values fall back to DefaultPrefix and DefaultDomain.
func NewGenerator(prefix, domain string, logger *zap.Logger) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if domain == "" {
		domain = DefaultDomain
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Generator{
		prefix: prefix,
		domain: domain,
		logger: logger.Named("credential"),
		random: rand.Reader,
	}
}

// Generate returns a fresh credential.
func (g *Generator) Generate() (Credential, error) {
	secret, err := g.Secret()
	if err != nil {
		return Credential{}, err
	}
	return Credential{Email: g.Email(), Secret: secret}, nil
}

// Email returns a new address whose local part ends in 16 hex characters
// taken from a random UUID.
func (g *Generator) Email() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return fmt.Sprintf("%s_%s@%s", g.prefix, suffix, g.domain)
}

// Secret returns a policy compliant secret of SecretLength characters.
func (g *Generator) Secret() (string, error) {
	all := upperChars + lowerChars + numberChars + SymbolChars
	secret := make([]byte, 0, SecretLength)

	for _, charset := range []string{upperChars, lowerChars, numberChars, SymbolChars} {
		c, err := g.pick(charset)
		if err != nil {
			return "", err
		}
		secret = append(secret, c)
	}
	for len(secret) < SecretLength {
		c, err := g.pick(all)
		if err != nil {
			return "", err
		}
		secret = append(secret, c)
	}

	// Fisher-Yates, so the mandatory characters are not always up front.
	for i := len(secret) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure during shuffle: %w", err)
		}
		secret[i], secret[j] = secret[j], secret[i]
	}
	return string(secret), nil
}

// Fallback returns a random pre-vetted secret.
func (g *Generator) Fallback() (string, error) {
	i, err := g.intn(len(fallbackSecrets))
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return fallbackSecrets[i], nil
}

func (g *Generator) pick(charset string) (byte, error) {
	i, err := g.intn(len(charset))
	if err != nil {
		return 0, fmt.Errorf("crypto/rand failure: %w", err)
	}
	return charset[i], nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// SubmitFunc replaces the secret in the form.
type SubmitFunc func(ctx context.Context, secret string) error

// ProbeFunc reads the strength indicator text. An error means the indicator
// could not be read at all.
type ProbeFunc func(ctx context.Context) (string, error)

// IsStrong reports whether an indicator text rates a secret as strong.
func IsStrong(signal string) bool {
	return strings.Contains(strings.ToLower(signal), "strong")
}

// Reconcile reads the strength signal for cred.Secret. When the signal is
// readable and not strong, one fallback secret is submitted and stored in
// cred. There is never a second replacement.
func (g *Generator) Reconcile(ctx context.Context, cred *Credential, submit SubmitFunc, probe ProbeFunc) (Outcome, error) {
	signal, err := probe(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Unverified, ctxErr
		}
		g.logger.Info("Strength indicator unavailable; keeping generated secret.", zap.Error(err))
		return Unverified, nil
	}
	if IsStrong(signal) {
		g.logger.Debug("Secret rated strong.", zap.String("signal", signal))
		return Accepted, nil
	}

	replacement, err := g.Fallback()
	if err != nil {
		return Unverified, err
	}
	g.logger.Info("Secret not rated strong; submitting fallback.", zap.String("signal", signal))
	if err := submit(ctx, replacement); err != nil {
		return Unverified, fmt.Errorf("submit fallback secret: %w", err)
	}
	cred.Secret = replacement
	return Replaced, nil
}
