package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
)

const unknownHost = "unknown"

// Reporter writes failure artifacts next to the scenario's env tree
type Reporter struct {
	root     string
	hostname func() (string, error)
	logger   *slog.Logger
}

// Option configures a Reporter
type Option func(*Reporter)

// WithRoot relocates the /i tree under root
func WithRoot(root string) Option {
	return func(r *Reporter) {
		if root != "" {
			r.root = root
		}
	}
}

// WithHostname overrides hostname lookup
func WithHostname(fn func() (string, error)) Option {
	return func(r *Reporter) {
		r.hostname = fn
	}
}

// New creates a new Reporter
func New(logger *slog.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		root:     string(filepath.Separator),
		hostname: os.Hostname,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns where the artifact for key is written
func (r *Reporter) Path(key domain.RunKey) string {
	return filepath.Join(r.root, filepath.FromSlash(key.ErrorPath()))
}

// Report writes the hostname line followed by stdout and stderr to the
// error path derived from the payload, replacing any earlier artifact.
// Payloads without an env path are skipped and an empty path is returned.
func (r *Reporter) Report(payload domain.Payload, stdout, stderr []byte) (string, error) {
	key, ok := domain.ParseRunKey(payload)
	if !ok {
		r.logger.Debug("No env path in payload, skipping failure artifact",
			slog.Int("payload_size", len(payload)),
		)
		return "", nil
	}

	path := r.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create error directory: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(stdout) + len(stderr) + 64)
	fmt.Fprintf(&buf, "Hostname: %s\n", r.Host())
	buf.Write(stdout)
	buf.Write(stderr)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write error file: %w", err)
	}

	r.logger.Info("Failure artifact written",
		slog.String("path", path),
		slog.String("scenario", key.Scenario),
		slog.String("huc12", key.HUC12),
		slog.String("fpath", key.FlowpathID),
	)

	return path, nil
}

// Host returns the name written on the first line of every artifact
func (r *Reporter) Host() string {
	name, err := r.hostname()
	if err != nil || name == "" {
		r.logger.Warn("Failed to resolve hostname",
			slog.Any("error", err),
		)
		return unknownHost
	}
	return name
}
