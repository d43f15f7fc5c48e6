package migration

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceHasPairedMigrations(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	seen := 0
	for {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err, "version %d up", v)
		body, err := io.ReadAll(up)
		up.Close()
		require.NoError(t, err)
		require.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := src.ReadDown(v)
		require.NoError(t, err, "version %d down", v)
		down.Close()
		seen++

		next, err := src.Next(v)
		if err != nil {
			require.ErrorIs(t, err, os.ErrNotExist)
			break
		}
		v = next
	}
	require.Equal(t, 5, seen)
}

func TestSchemaCoversDeadLetterTable(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	up, _, err := src.ReadUp(4)
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS queue_dlq")
}

func TestNewRequiresHandle(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
