package audit

import (
	"path/filepath"
	"testing"

	"github.com/dsbroker/broker/pkg/permission"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenMigratesSchema(t *testing.T) {
	l := openTestLog(t)
	_, err := l.db.Exec("SELECT count(*) FROM permission_denials")
	require.NoError(t, err)
	_, err = l.db.Exec("SELECT count(*) FROM upstream_events")
	require.NoError(t, err)
}

func TestRecordDenialInsertsRow(t *testing.T) {
	l := openTestLog(t)
	l.RecordDenial("/cluster1/node1", []string{"ops", "default"})

	var count int
	require.NoError(t, l.db.Get(&count, "SELECT count(*) FROM permission_denials WHERE path = ?", "/cluster1/node1"))
	require.Equal(t, 1, count)
}

func TestRecordLifecycleInsertsRow(t *testing.T) {
	l := openTestLog(t)
	l.RecordLifecycle("peer-a", "added")

	var count int
	require.NoError(t, l.db.Get(&count, "SELECT count(*) FROM upstream_events WHERE name = ? AND kind = ?", "peer-a", "added"))
	require.Equal(t, 1, count)
}

func TestResolveAndRecordOnlyRecordsOnDenial(t *testing.T) {
	l := openTestLog(t)

	lvl := ResolveAndRecord(l, func() permission.Level { return permission.Write }, "/a", []string{"ops"})
	require.Equal(t, permission.Write, lvl)

	var count int
	require.NoError(t, l.db.Get(&count, "SELECT count(*) FROM permission_denials"))
	require.Equal(t, 0, count)

	lvl = ResolveAndRecord(l, func() permission.Level { return permission.None }, "/b", []string{"ops"})
	require.Equal(t, permission.None, lvl)
	require.NoError(t, l.db.Get(&count, "SELECT count(*) FROM permission_denials"))
	require.Equal(t, 1, count)
}
