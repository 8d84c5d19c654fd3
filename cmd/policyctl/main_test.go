package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
uploads:
  gear_image:
    allowed_mime_types: [image/png, image/jpeg]
    max_size_bytes: 5242880
    folder: gear
`), 0o644))
	return path
}

func TestCanCmd(t *testing.T) {
	out, err := run(t, "can", "--role", "manager", "--action", "read", "--resource", "financials")
	require.NoError(t, err)
	assert.Equal(t, "allow\n", out)

	out, err = run(t, "can", "--role", "operator", "--action", "delete", "--resource", "inventory")
	assert.True(t, errors.Is(err, errDenied))
	assert.Equal(t, "deny\n", out)

	out, err = run(t, "can", "--role", "manager", "--unverified", "--action", "create", "--resource", "reservation")
	assert.True(t, errors.Is(err, errDenied))
	assert.Equal(t, "deny\n", out)

	_, err = run(t, "can", "--role", "owner", "--action", "read", "--resource", "inventory")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errDenied))
}

func TestMatrixCmd(t *testing.T) {
	out, err := run(t, "matrix", "--role", "operator")
	require.NoError(t, err)
	assert.Contains(t, out, "RESOURCE")
	assert.Contains(t, out, "OVERRIDE")
	assert.Regexp(t, `financials\s+-\s+-\s+-\s+-\s+-`, out)
	assert.Regexp(t, `inventory\s+yes\s+yes\s+yes\s+-\s+-`, out)
}

func TestValidateUploadCmd(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "validate-upload",
		"--use-case", "gear_image", "--mime", "image/png", "--size", "1048576",
		"--path", "provider123/gear/tent.png", "--prefix", "provider123/gear/")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	out, err = run(t, "--config", cfg, "validate-upload",
		"--use-case", "gear_image", "--mime", "image/png", "--size", "10485760",
		"--path", "provider123/gear/tent.png", "--prefix", "provider123/gear/")
	assert.True(t, errors.Is(err, errDenied))
	assert.Equal(t, "file_too_large\n", out)

	out, err = run(t, "--config", cfg, "validate-upload",
		"--use-case", "gear_image", "--mime", "image/png", "--size", "5242880",
		"--path", "other-provider/gear/tent.png", "--prefix", "provider123/gear/")
	assert.True(t, errors.Is(err, errDenied))
	assert.Equal(t, "path_not_allowed\n", out)
}

func TestValidateUploadCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "validate-upload",
		"--use-case", "gear_image", "--mime", "image/png", "--size", "1",
		"--path", "p/gear/a.png", "--prefix", "p/gear/")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errDenied))
}

func TestMessageCmd(t *testing.T) {
	out, err := run(t, "message", "insufficient_stock", "--lang", "cs")
	require.NoError(t, err)
	assert.Equal(t, "Není k dispozici dostatek kusů.\n", out)

	out, err = run(t, "message", "mime_not_allowed")
	require.NoError(t, err)
	assert.Equal(t, "This file type is not allowed here.\n", out)
}
