package report

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const envPayload = "1.0\n/i/7/env/07080106/0305/070801060305_12.env\n/i/7/man/x.man\n"

func newTestReporter(t *testing.T, host string) (*Reporter, string) {
	t.Helper()
	root := t.TempDir()
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRoot(root),
		WithHostname(func() (string, error) { return host, nil }),
	)
	return r, root
}

func TestReport_WritesArtifact(t *testing.T) {
	r, root := newTestReporter(t, "node-3")

	path, err := r.Report(domain.Payload(envPayload), []byte("stdout bytes\n"), []byte("stderr \x00 bytes"))
	require.NoError(t, err)

	want := filepath.Join(root, "i", "7", "error", "07080106", "0305", "070801060305_12.error")
	assert.Equal(t, want, path)

	content, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "Hostname: node-3\nstdout bytes\nstderr \x00 bytes", string(content))
}

func TestReport_OverwritesPreviousArtifact(t *testing.T) {
	r, _ := newTestReporter(t, "node-3")

	_, err := r.Report(domain.Payload(envPayload), []byte("a much longer first attempt output"), []byte("err1"))
	require.NoError(t, err)

	path, err := r.Report(domain.Payload(envPayload), []byte("out"), []byte("err"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hostname: node-3\nouterr", string(content))

	again, err := r.Report(domain.Payload(envPayload), []byte("out"), []byte("err"))
	require.NoError(t, err)
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, content, second)
}

func TestReport_NoEnvPathIsNoop(t *testing.T) {
	r, root := newTestReporter(t, "node-3")

	path, err := r.Report(domain.Payload("no path in here"), []byte("out"), []byte("err"))
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReport_HostnameFailure(t *testing.T) {
	root := t.TempDir()
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRoot(root),
		WithHostname(func() (string, error) { return "", errors.New("no uts") }),
	)

	path, err := r.Report(domain.Payload(envPayload), nil, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hostname: unknown\n", string(content))
}

func TestReport_DirectoryCreationFails(t *testing.T) {
	root := t.TempDir()
	// a regular file where the /i directory should be
	require.NoError(t, os.WriteFile(filepath.Join(root, "i"), []byte("x"), 0o644))

	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)), WithRoot(root))

	path, err := r.Report(domain.Payload(envPayload), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create error directory")
	assert.Empty(t, path)
}

func TestNew_DefaultRoot(t *testing.T) {
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	key, ok := domain.ParseRunKey(domain.Payload(envPayload))
	require.True(t, ok)

	assert.Equal(t, filepath.FromSlash("/i/7/error/07080106/0305/070801060305_12.error"), r.Path(key))
}
