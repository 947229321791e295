package challenge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/turnstile/pkg/cache"
	"github.com/platinummonkey/turnstile/pkg/observability"
)

// Kind separates registration challenges from authentication challenges
type Kind string

const (
	KindRegistration   Kind = "registration"
	KindAuthentication Kind = "authentication"
)

// DefaultTTL bounds how long a ceremony may take
const DefaultTTL = 5 * time.Minute

var (
	// ErrChallengeMissing is returned when no live record exists, including
	// when a concurrent consumer removed it first
	ErrChallengeMissing = errors.New("challenge missing")

	// ErrChallengeMismatch is returned when the presented value differs from the record
	ErrChallengeMismatch = errors.New("challenge mismatch")
)

// Record is one outstanding challenge. Payload carries ceremony state that
// must survive until the finish step.
type Record struct {
	Kind      Kind            `json:"kind"`
	Subject   string          `json:"subject"`
	Challenge string          `json:"challenge"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IssuedAt  time.Time       `json:"issuedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Ledger issues and consumes challenge records
type Ledger struct {
	backend cache.Backend
	kinds   map[Kind]cache.Backend
	ttl     time.Duration
	logger  *observability.Logger
	now     func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithKindBackend stores records of kind in backend instead of the default one
func WithKindBackend(kind Kind, backend cache.Backend) Option {
	return func(l *Ledger) {
		l.kinds[kind] = backend
	}
}

// NewLedger creates a ledger over backend. A non-positive ttl uses DefaultTTL.
func NewLedger(backend cache.Backend, ttl time.Duration, logger *observability.Logger, opts ...Option) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	l := &Ledger{
		backend: backend,
		kinds:   make(map[Kind]cache.Backend),
		ttl:     ttl,
		logger:  logger.WithField("component", "challenge_ledger"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewMemoryLedger creates an in-process ledger. Registration and authentication
// records live in separate LRUs of maxEntries each, so anonymous login starts
// can only evict other login starts.
func NewMemoryLedger(maxEntries int, ttl time.Duration, logger *observability.Logger) *Ledger {
	return NewLedger(cache.NewMemoryBackend(maxEntries), ttl, logger,
		WithKindBackend(KindAuthentication, cache.NewMemoryBackend(maxEntries)))
}

func (l *Ledger) backendFor(kind Kind) cache.Backend {
	if b, ok := l.kinds[kind]; ok {
		return b
	}
	return l.backend
}

// TTL returns the lifetime of issued records
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

func recordKey(kind Kind, subject string) string {
	return "challenge:" + string(kind) + ":" + subject
}

// Issue stores a challenge for (kind, subject), replacing any earlier one
func (l *Ledger) Issue(ctx context.Context, kind Kind, subject, value string, payload []byte) error {
	if subject == "" || value == "" {
		return fmt.Errorf("challenge subject and value are required")
	}

	issuedAt := l.now().UTC()
	rec := Record{
		Kind:      kind,
		Subject:   subject,
		Challenge: value,
		Payload:   payload,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(l.ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	if err := l.backendFor(kind).Set(ctx, recordKey(kind, subject), data, l.ttl); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"kind":    kind,
		"subject": subject,
	}).Debug("Challenge issued")
	return nil
}

// Consume removes and returns the record for (kind, subject) if presented
// matches it. A mismatch leaves the record in place.
func (l *Ledger) Consume(ctx context.Context, kind Kind, subject, presented string) (*Record, error) {
	key := recordKey(kind, subject)
	backend := l.backendFor(kind)

	data, err := backend.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrChallengeMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = backend.Delete(ctx, key)
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	if !l.now().Before(rec.ExpiresAt) {
		return nil, ErrChallengeMissing
	}

	if subtle.ConstantTimeCompare([]byte(rec.Challenge), []byte(presented)) != 1 {
		l.logger.WithFields(map[string]interface{}{
			"kind":    kind,
			"subject": subject,
		}).Warn("Presented challenge does not match")
		return nil, ErrChallengeMismatch
	}

	removed, err := backend.CompareAndDelete(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !removed {
		return nil, ErrChallengeMissing
	}

	return &rec, nil
}
