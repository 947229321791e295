package storage

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
)

const credentialColumns = `id, user_id, public_key, attestation_type, aaguid, sign_count, transports,
	device_type, backed_up, backup_eligible, user_verified, created_at, last_used_at`

// Binary credential fields are stored as unpadded base64url text so the schema
// stays portable between drivers.
var b64 = base64.RawURLEncoding

// ListCredentials returns the user's passkeys in registration order
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]*auth.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*auth.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return creds, nil
}

// AddCredential stores a newly registered passkey
func (s *Store) AddCredential(ctx context.Context, cred *auth.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now()
	}
	if cred.DeviceType == "" {
		cred.DeviceType = auth.DeviceTypeFor(cred.BackupEligible)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (`+credentialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b64.EncodeToString(cred.ID),
		cred.UserID,
		b64.EncodeToString(cred.PublicKey),
		cred.AttestationType,
		b64.EncodeToString(cred.AAGUID),
		int64(cred.SignCount),
		strings.Join(cred.Transports, ","),
		string(cred.DeviceType),
		cred.BackedUp,
		cred.BackupEligible,
		cred.UserVerified,
		cred.CreatedAt,
		nullTime(cred.LastUsedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("id", "credential already registered")
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	s.logger.WithField("user_id", cred.UserID).Info("Passkey registered")
	return nil
}

// FindCredential looks up a credential by raw id across all users
func (s *Store) FindCredential(ctx context.Context, rawID []byte) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, b64.EncodeToString(rawID))
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("id", "credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return cred, nil
}

// UpdateSignCount moves the sign counter from expected to next and stamps the
// last use. It returns false when another login already moved the counter.
func (s *Store) UpdateSignCount(ctx context.Context, rawID []byte, expected, next uint32, usedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET sign_count = $1, last_used_at = $2 WHERE id = $3 AND sign_count = $4`,
		int64(next), usedAt.UTC(), b64.EncodeToString(rawID), int64(expected),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update sign count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update sign count: %w", err)
	}
	return n == 1, nil
}

func scanCredential(row rowScanner) (*auth.Credential, error) {
	var (
		cred       auth.Credential
		id         string
		publicKey  string
		aaguid     string
		signCount  int64
		transports string
		deviceType string
		lastUsedAt sql.NullTime
		err        error
	)
	err = row.Scan(
		&id,
		&cred.UserID,
		&publicKey,
		&cred.AttestationType,
		&aaguid,
		&signCount,
		&transports,
		&deviceType,
		&cred.BackedUp,
		&cred.BackupEligible,
		&cred.UserVerified,
		&cred.CreatedAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if cred.ID, err = b64.DecodeString(id); err != nil {
		return nil, fmt.Errorf("corrupt credential id: %w", err)
	}
	if cred.PublicKey, err = b64.DecodeString(publicKey); err != nil {
		return nil, fmt.Errorf("corrupt public key: %w", err)
	}
	if cred.AAGUID, err = b64.DecodeString(aaguid); err != nil {
		return nil, fmt.Errorf("corrupt aaguid: %w", err)
	}
	cred.SignCount = uint32(signCount)
	if transports != "" {
		cred.Transports = strings.Split(transports, ",")
	}
	cred.DeviceType = auth.DeviceType(deviceType)
	cred.CreatedAt = cred.CreatedAt.UTC()
	if lastUsedAt.Valid {
		t := lastUsedAt.Time.UTC()
		cred.LastUsedAt = &t
	}
	return &cred, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
