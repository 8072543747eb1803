package auth

import "time"

// syntheticCreatedAt keeps the fallback profile stable across calls so
// consumers can compare snapshots by value.
var syntheticCreatedAt = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SyntheticProfile returns the fixed administrator profile used by the mock
// backend and by the development-only fail-open fallback. It must never be
// served in production (see profile.FailClosed).
func SyntheticProfile(id string) Profile {
	if id == "" {
		id = "mock-user-1"
	}
	return Profile{
		ID:        id,
		Email:     "rafael.minatto@yahoo.com.br",
		FullName:  "Rafael Minatto",
		Role:      RoleAdmin,
		Crefito:   "3/12345-F",
		Specialty: "Fisioterapia Ortopédica",
		CreatedAt: syntheticCreatedAt,
		UpdatedAt: syntheticCreatedAt,
	}
}
