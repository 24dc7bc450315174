package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "receiptbot dev")
}

func TestValidate(t *testing.T) {
	scripts := t.TempDir()
	for _, name := range []string{"receipt.py", "receipt_sber_bill.py", "receipt_tinkoff.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(scripts, name), []byte("exit 0\n"), 0o644))
	}
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yml := "telegram:\n  token: \"1:x\"\nrenderer:\n  command: sh\n  scripts_dir: " + scripts + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0o600))

	out, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "flows: 3")
	require.Contains(t, out, "ok")

	require.NoError(t, os.Remove(filepath.Join(scripts, "receipt_tinkoff.py")))
	_, err = execute(t, "validate", "-c", cfgPath)
	require.ErrorContains(t, err, "receipt_tinkoff.py")
}
