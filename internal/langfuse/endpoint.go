// Package langfuse is the authenticated transport to the Langfuse public API
// and the typed request/response shapes of the endpoints this server uses.
package langfuse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alecgard/langfuse-mcp/internal/config"
)

var (
	// ErrConfiguration is returned when required credentials are missing.
	ErrConfiguration = errors.New("invalid langfuse configuration")
	// ErrInsecureTransport is returned when the base URL is not https.
	ErrInsecureTransport = errors.New("langfuse base url must use https")
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 10 * 1024 * 1024
)

// Endpoint is the resolved, immutable connection settings for one Langfuse
// project. It is built once at startup and shared by every call.
type Endpoint struct {
	ProjectID        string
	BaseURL          string
	PublicKey        string
	SecretKey        string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// NewEndpoint validates cfg and resolves the endpoint.
func NewEndpoint(cfg config.LangfuseConfig) (Endpoint, error) {
	pk := strings.TrimSpace(cfg.PublicKey)
	sk := strings.TrimSpace(cfg.SecretKey)
	if pk == "" {
		return Endpoint{}, fmt.Errorf("%w: public key is required", ErrConfiguration)
	}
	if sk == "" {
		return Endpoint{}, fmt.Errorf("%w: secret key is required", ErrConfiguration)
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if !strings.HasPrefix(strings.ToLower(base), "https://") {
		return Endpoint{}, ErrInsecureTransport
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: base url has no host", ErrInsecureTransport)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	return Endpoint{
		ProjectID:        DeriveProjectID(pk),
		BaseURL:          strings.TrimRight(base, "/"),
		PublicKey:        pk,
		SecretKey:        sk,
		Timeout:          timeout,
		MaxResponseBytes: maxBytes,
	}, nil
}

// DeriveProjectID returns a short display identifier for a public key. Keys
// of the form "pk-lf-<segment>-..." yield <segment>; anything else yields its
// first eight characters. It is not a security boundary.
func DeriveProjectID(publicKey string) string {
	if rest, ok := strings.CutPrefix(publicKey, "pk-lf-"); ok && rest != "" {
		seg, _, _ := strings.Cut(rest, "-")
		if seg != "" {
			return seg
		}
	}
	if len(publicKey) > 8 {
		return publicKey[:8]
	}
	return publicKey
}

// Host returns the host part of the base URL.
func (e Endpoint) Host() string {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// String never includes the secret key.
func (e Endpoint) String() string {
	return fmt.Sprintf("langfuse(project=%s host=%s)", e.ProjectID, e.Host())
}

// LogValue keeps the keys out of structured logs.
func (e Endpoint) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", e.ProjectID),
		slog.String("host", e.Host()),
		slog.Duration("timeout", e.Timeout),
	)
}
