package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names. Anything that is not production counts as development,
// which is the safe direction for the profile fallback (fail-open only in dev).
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	defaultAddr        = ":8080"
	defaultAccessTTL   = 15 * time.Minute
	defaultCallTimeout = 10 * time.Second
	minSecretLength    = 21
)

// placeholderMarkers flag copy-pasted template values that were never filled
// in. Matching any of them downgrades to mock mode.
var placeholderMarkers = []string{"your-", "changeme", "change-me", "example", "placeholder"}

// Config holds everything the process reads from the environment.
type Config struct {
	Addr     string
	GRPCAddr string

	// PGDSN is the backend URL; AuthSecret signs access tokens. Both must
	// look plausible for live mode to engage.
	PGDSN      string
	AuthSecret string

	Env          string
	MockOverride bool

	AccessTTL   time.Duration
	CallTimeout time.Duration

	Mode ModeDecision
}

// ModeDecision records how the process decided between the mock and live
// backend. It separates "intentionally mock" (explicit override) from
// "misconfigured" so startup logs can say which one happened.
type ModeDecision struct {
	Mock        bool
	Intentional bool
	Reason      string
}

func (d ModeDecision) String() string {
	if !d.Mock {
		return "live"
	}
	if d.Intentional {
		return fmt.Sprintf("mock (intentional: %s)", d.Reason)
	}
	return fmt.Sprintf("mock (misconfigured: %s)", d.Reason)
}

// FromEnv reads the configuration. It never fails: ambiguous backend
// settings degrade to mock mode and the decision carries the reason.
func FromEnv() Config {
	cfg := Config{
		Addr:         envOr("FISIO_ADDR", defaultAddr),
		GRPCAddr:     strings.TrimSpace(os.Getenv("FISIO_GRPC_ADDR")),
		PGDSN:        strings.TrimSpace(os.Getenv("FISIO_PG_DSN")),
		AuthSecret:   strings.TrimSpace(os.Getenv("FISIO_AUTH_SECRET")),
		Env:          parseEnv(os.Getenv("FISIO_ENV")),
		MockOverride: parseBool(os.Getenv("FISIO_MOCK_AUTH")),
		AccessTTL:    envDuration("FISIO_ACCESS_TTL", defaultAccessTTL),
		CallTimeout:  envDuration("FISIO_CALL_TIMEOUT", defaultCallTimeout),
	}
	cfg.Mode = DecideMode(cfg.PGDSN, cfg.AuthSecret, cfg.MockOverride)
	return cfg
}

// DecideMode implements the mode selector. Evaluated once at startup; pure
// apart from that.
func DecideMode(dsn, secret string, override bool) ModeDecision {
	if override {
		return ModeDecision{Mock: true, Intentional: true, Reason: "FISIO_MOCK_AUTH is set"}
	}
	dsn = strings.TrimSpace(dsn)
	secret = strings.TrimSpace(secret)

	if dsn == "" {
		return ModeDecision{Mock: true, Reason: "backend URL is not configured"}
	}
	if reason := validateDSN(dsn); reason != "" {
		return ModeDecision{Mock: true, Reason: reason}
	}
	if secret == "" {
		return ModeDecision{Mock: true, Reason: "auth secret is not configured"}
	}
	if len(secret) < minSecretLength {
		return ModeDecision{Mock: true, Reason: "auth secret is implausibly short"}
	}
	if marker := placeholderIn(dsn); marker != "" {
		return ModeDecision{Mock: true, Reason: "backend URL contains placeholder " + strconv.Quote(marker)}
	}
	if marker := placeholderIn(secret); marker != "" {
		return ModeDecision{Mock: true, Reason: "auth secret contains placeholder " + strconv.Quote(marker)}
	}
	return ModeDecision{}
}

// IsDevelopment reports whether profile resolution may fail open.
func (c Config) IsDevelopment() bool {
	return c.Env != EnvProduction
}

func validateDSN(dsn string) string {
	// Keyword/value form ("host=... dbname=...") is accepted as-is; URL form
	// must parse and carry a postgres scheme.
	if !strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "=") {
			return ""
		}
		return "backend URL is malformed"
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "backend URL is malformed"
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return ""
	default:
		return "backend URL has unsupported scheme " + strconv.Quote(u.Scheme)
	}
}

func placeholderIn(value string) string {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

func parseEnv(raw string) string {
	if strings.TrimSpace(strings.ToLower(raw)) == EnvProduction {
		return EnvProduction
	}
	return EnvDevelopment
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
