package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
)

// RegisterInput is a validated registration request
type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// ProfilePatch carries the profile fields to change. Nil fields are left as is;
// an empty ProfileImage clears the image.
type ProfilePatch struct {
	FirstName    *string
	LastName     *string
	ProfileImage *string
}

const userColumns = `id, email, first_name, last_name, profile_image, password_hash, connect_state, created_at, updated_at`

// Register creates a password user. Emails are unique regardless of case.
func (s *Store) Register(ctx context.Context, in RegisterInput) (*auth.User, error) {
	email := strings.TrimSpace(in.Email)

	exists, err := s.emailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("email", "email already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		ConnectState: auth.ConnectStateOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, profile_image, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULL, $5, $6, $7)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		// Lost a race with a concurrent registration of the same address
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("email", "email already exists")
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user.Sanitized(), nil
}

// Login checks an email and password pair. Failures keep the field that failed
// so clients can highlight it.
func (s *Store) Login(ctx context.Context, email, password string) (*auth.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.Unauthorized("email", "user not found")
		}
		return nil, err
	}

	if !user.HasPassword() {
		return nil, apperror.Unauthorized("password", "password not set")
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, apperror.Unauthorized("password", "password is wrong")
	}

	return user.Sanitized(), nil
}

// GetUser loads a user by id, including the password hash
func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("id", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail loads a user by case-insensitive email, including the password hash
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("email", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the fields of patch that differ from the stored user
func (s *Store) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*auth.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if patch.FirstName != nil && *patch.FirstName != user.FirstName {
		user.FirstName = *patch.FirstName
		changed = true
	}
	if patch.LastName != nil && *patch.LastName != user.LastName {
		user.LastName = *patch.LastName
		changed = true
	}
	if patch.ProfileImage != nil && *patch.ProfileImage != user.ProfileImage {
		user.ProfileImage = *patch.ProfileImage
		changed = true
	}
	if !changed {
		return nil, apperror.BadRequest("nothing to update")
	}

	user.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET first_name = $1, last_name = $2, profile_image = $3, updated_at = $4 WHERE id = $5`,
		user.FirstName, user.LastName, nullString(user.ProfileImage), user.UpdatedAt, user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, apperror.NotFound("id", "user not found")
	}

	return user.Sanitized(), nil
}

// SetConnectState records the user's presence. It leaves updated_at alone.
func (s *Store) SetConnectState(ctx context.Context, id string, state auth.ConnectState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET connect_state = $1 WHERE id = $2`, string(state), id)
	if err != nil {
		return fmt.Errorf("failed to set connect state for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("id", "user not found")
	}
	return nil
}

func (s *Store) emailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE lower(email) = lower($1)`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user         auth.User
		profileImage sql.NullString
		passwordHash sql.NullString
		connectState string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&profileImage,
		&passwordHash,
		&connectState,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ProfileImage = profileImage.String
	user.PasswordHash = passwordHash.String
	user.ConnectState = auth.ConnectState(connectState)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
