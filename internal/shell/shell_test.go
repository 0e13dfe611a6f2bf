package shell

import (
	"bufio"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_Run(t *testing.T) {
	out, err := Exec{}.Run(context.Background(), "sh", "-c", "echo 120")
	require.NoError(t, err)
	assert.Equal(t, "120\n", string(out))
}

func TestExec_RunFailure(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "sh", "-c", "echo 'Permission denial' >&2; exit 3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)

	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "Permission denial", ee.Stderr)
	assert.Contains(t, err.Error(), "Permission denial")
}

func TestExec_Stream(t *testing.T) {
	out, wait, err := Exec{}.Stream(context.Background(), "sh", "-c", "echo a; echo b")
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, wait())
	assert.Equal(t, []string{"a", "b"}, lines)
}
