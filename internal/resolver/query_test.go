package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/stretchr/testify/require"
)

func TestNativeQuery(t *testing.T) {
	q := NativeQuery{}
	v, err := q.Lookup(context.Background(), []byte(`{"downloadUrl":"https://example/a"}`), "downloadUrl")
	require.NoError(t, err)
	require.Equal(t, "https://example/a", v)

	_, err = q.Lookup(context.Background(), []byte(`{"downloadUrl":null}`), "downloadUrl")
	require.ErrorIs(t, err, ErrFieldMissing)
	_, err = q.Lookup(context.Background(), []byte(`{}`), "downloadUrl")
	require.ErrorIs(t, err, ErrFieldMissing)
	_, err = q.Lookup(context.Background(), []byte(`{"downloadUrl":{"x":1}}`), "downloadUrl")
	require.ErrorContains(t, err, "is not a string")
	_, err = q.Lookup(context.Background(), []byte(`{`), "downloadUrl")
	require.ErrorContains(t, err, "invalid JSON")
}

func TestJQQueryWithFakeRunner(t *testing.T) {
	runner := system.NewFakeRunner(JQBinary)
	runner.Handler = func(name string, args []string, stdin []byte) ([]byte, error) {
		require.Equal(t, JQBinary, name)
		require.Equal(t, []string{"-r", "--arg", "field", "downloadUrl", ".[$field] | strings"}, args)
		switch string(stdin) {
		case `{"downloadUrl":"https://example/a"}`:
			return []byte("https://example/a\n"), nil
		case `{"downloadUrl":null}`:
			return []byte("null\n"), nil
		default:
			return nil, &system.RunError{Command: "jq", ExitCode: 5, Stderr: "parse error"}
		}
	}
	q := JQQuery{Runner: runner}

	v, err := q.Lookup(context.Background(), []byte(`{"downloadUrl":"https://example/a"}`), "downloadUrl")
	require.NoError(t, err)
	require.Equal(t, "https://example/a", v)

	_, err = q.Lookup(context.Background(), []byte(`{"downloadUrl":null}`), "downloadUrl")
	require.ErrorIs(t, err, ErrFieldMissing)

	_, err = q.Lookup(context.Background(), []byte(`garbage`), "downloadUrl")
	var runErr *system.RunError
	require.True(t, errors.As(err, &runErr))
	require.Len(t, runner.CallLog(), 3)
}

func TestJQQueryWithRealBinary(t *testing.T) {
	runner := system.ExecRunner{}
	if _, err := runner.LookPath(JQBinary); err != nil {
		t.Skip("jq not installed")
	}
	q := JQQuery{Runner: runner}
	v, err := q.Lookup(context.Background(), []byte(`{"downloadUrl":"https://example/app-v2.bin"}`), "downloadUrl")
	require.NoError(t, err)
	require.Equal(t, "https://example/app-v2.bin", v)

	for _, body := range []string{`{"downloadUrl":null}`, `{"downloadUrl":42}`, `{"downloadUrl":false}`, `{"downloadUrl":{"x":1}}`, `{}`} {
		_, err = q.Lookup(context.Background(), []byte(body), "downloadUrl")
		require.ErrorIs(t, err, ErrFieldMissing, body)
	}

	_, err = q.Lookup(context.Background(), []byte(`{not json`), "downloadUrl")
	require.Error(t, err)
}
