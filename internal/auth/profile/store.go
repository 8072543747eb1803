// Package profile resolves identity user ids into application profiles and
// defines the failure strategy for broken lookups (fail-open in development,
// fail-closed in production).
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"manusfisio.app/internal/auth"
)

// Store reads and mutates profile rows in the users relation.
type Store interface {
	Find(ctx context.Context, id string) (*auth.Profile, error)
	List(ctx context.Context) ([]*auth.Profile, error)
	UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.Profile, error)
}

const profileColumns = `id, email, full_name, avatar_url, role, crefito, specialty, university, semester, created_at, updated_at`

var _ Store = (*PGStore)(nil)

// PGStore implements Store over PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Find performs the single-row read by primary key.
func (s *PGStore) Find(ctx context.Context, id string) (*auth.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+profileColumns+` from users where id=$1`, id)
	p, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all profiles ordered by creation time.
func (s *PGStore) List(ctx context.Context) ([]*auth.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+profileColumns+` from users order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*auth.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateRole changes a profile's role and returns the updated record.
func (s *PGStore) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", auth.ErrInvalidInput, role)
	}
	row := s.db.QueryRowContext(ctx,
		`update users set role=$2, updated_at=now() where id=$1 returning `+profileColumns, id, string(role))
	p, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProfile(scan func(dest ...any) error) (*auth.Profile, error) {
	var (
		p          auth.Profile
		role       string
		avatarURL  sql.NullString
		crefito    sql.NullString
		specialty  sql.NullString
		university sql.NullString
		semester   sql.NullInt64
	)
	if err := scan(
		&p.ID, &p.Email, &p.FullName, &avatarURL, &role,
		&crefito, &specialty, &university, &semester,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Role = auth.ParseRole(role)
	p.AvatarURL = avatarURL.String
	p.Crefito = crefito.String
	p.Specialty = specialty.String
	p.University = university.String
	if semester.Valid {
		v := int(semester.Int64)
		p.Semester = &v
	}
	p.Email = strings.ToLower(p.Email)
	return &p, nil
}
