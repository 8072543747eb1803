package provider

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/ids"
)

// User account statuses. Pending accounts have not confirmed their email
// yet and cannot sign in.
const (
	statusActive   = "active"
	statusPending  = "pending"
	statusDisabled = "disabled"
)

const (
	defaultAccessTTL = 15 * time.Minute
	resetTokenTTL    = 2 * time.Hour
)

// Local is the live credential backend: it owns the users and sessions
// relations and mints its own access tokens.
type Local struct {
	db     *sql.DB
	signer *auth.Signer
	events *Events

	accessTTL time.Duration
	now       func() time.Time
}

// LocalOption configures the live backend.
type LocalOption func(*Local)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) LocalOption {
	return func(l *Local) {
		if ttl > 0 {
			l.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) LocalOption {
	return func(l *Local) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLocal constructs the live backend.
func NewLocal(db *sql.DB, signer *auth.Signer, opts ...LocalOption) (*Local, error) {
	if db == nil {
		return nil, errors.New("provider: db is required")
	}
	if signer == nil {
		return nil, errors.New("provider: signer is required")
	}
	l := &Local{
		db:        db,
		signer:    signer,
		events:    NewEvents(),
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Local) Mode() string    { return ModeLive }
func (l *Local) Events() *Events { return l.events }

// SignIn verifies credentials against the users relation and establishes a
// session. All credential failures collapse into ErrInvalidCredentials so
// the response does not leak which part was wrong.
func (l *Local) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	var (
		userID, passwordHash, status, role string
	)
	row := l.db.QueryRowContext(ctx,
		`select id, password_hash, status, role from users where email=$1`, email)
	if err := row.Scan(&userID, &passwordHash, &status, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if status != statusActive {
		return nil, auth.ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(passwordHash, password); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	now := l.now().UTC()
	sessionID := ids.New()
	token, expiresAt, err := l.signer.Sign(userID, auth.ParseRole(role), sessionID, l.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	if _, err := l.db.ExecContext(ctx,
		`insert into sessions(id, user_id, expires_at, created_at) values($1,$2,$3,$4)`,
		sessionID, userID, expiresAt, now,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	l.events.Publish(Event{Type: EventSignedIn, UserID: userID, SessionID: sessionID, At: now})
	return &auth.Session{
		ID:          sessionID,
		UserID:      userID,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}, nil
}

// SignUp provisions a new identity with the lowest-privilege role and a
// pending status; the account cannot sign in until confirmed.
func (l *Local) SignUp(ctx context.Context, email, password string, seed auth.ProfileSeed) (*auth.Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must have at least 8 characters", auth.ErrInvalidInput)
	}

	var exists bool
	if err := l.db.QueryRowContext(ctx,
		`select exists(select 1 from users where email=$1)`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email já cadastrado", auth.ErrAlreadyExists)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	profile := &auth.Profile{
		ID:         ids.New(),
		Email:      email,
		FullName:   strings.TrimSpace(seed.FullName),
		Role:       auth.RoleGuest,
		Crefito:    strings.TrimSpace(seed.Crefito),
		Specialty:  strings.TrimSpace(seed.Specialty),
		University: strings.TrimSpace(seed.University),
		Semester:   seed.Semester,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := l.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, status, full_name, role, crefito, specialty, university, semester)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		profile.ID, profile.Email, hash, statusPending, profile.FullName, string(profile.Role),
		nullable(profile.Crefito), nullable(profile.Specialty), nullable(profile.University), profile.Semester,
	); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return profile, nil
}

// SignOut revokes the session named by the token. Unknown, malformed or
// already-revoked tokens are not errors.
func (l *Local) SignOut(ctx context.Context, token string) error {
	claims, err := l.signer.Parse(token)
	if err != nil {
		return nil
	}
	res, err := l.db.ExecContext(ctx,
		`update sessions set revoked=true where id=$1 and revoked=false`, claims.ID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.events.Publish(Event{Type: EventSignedOut, UserID: claims.Subject, SessionID: claims.ID, At: l.now().UTC()})
	}
	return nil
}

// ResetPassword stores a single-use reset token for the account. The
// response is identical whether or not the email exists.
func (l *Local) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}

	var userID string
	err := l.db.QueryRowContext(ctx, `select id from users where email=$1`, email).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	sum := sha256.Sum256([]byte(base64.RawURLEncoding.EncodeToString(secret)))
	now := l.now().UTC()
	if _, err := l.db.ExecContext(ctx,
		`insert into password_resets(id, user_id, token_hash, expires_at, created_at) values($1,$2,$3,$4,$5)`,
		ids.New(), userID, hex.EncodeToString(sum[:]), now.Add(resetTokenTTL), now,
	); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// GetSession validates a token and returns the live session, or (nil, nil)
// when the token is invalid, revoked or expired.
func (l *Local) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	claims, err := l.signer.Parse(token)
	if err != nil {
		return nil, nil
	}

	var (
		userID    string
		expiresAt time.Time
		createdAt time.Time
		revoked   bool
	)
	row := l.db.QueryRowContext(ctx,
		`select user_id, expires_at, created_at, revoked from sessions where id=$1`, claims.ID)
	if err := row.Scan(&userID, &expiresAt, &createdAt, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	if revoked {
		return nil, nil
	}
	now := l.now().UTC()
	if now.After(expiresAt) {
		l.events.Publish(Event{Type: EventExpired, UserID: userID, SessionID: claims.ID, At: now})
		return nil, nil
	}
	return &auth.Session{
		ID:          claims.ID,
		UserID:      userID,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
