package upstream

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsbroker/broker/internal/metrics"
	"github.com/dsbroker/broker/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	sys := node.New("upstream", node.Internal)
	data := node.New("upstream", node.Internal)
	reg, err := New(Config{
		StorageRoot: t.TempDir(),
		SysParent:   sys,
		DataParent:  data,
	})
	require.NoError(t, err)
	require.NoError(t, reg.EnsureStorage())
	return reg
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestAddConnectionRejectsMissingFields(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a"})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAddConnectionRejectsDuplicateName(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: false})
	require.NoError(t, err)

	_, err = reg.AddConnection(Settings{Name: "a", BrokerName: "other", URL: "wss://y", Enabled: false})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAddConnectionRegistersNodesAndPersists(t *testing.T) {
	reg := newTestRegistry(t)
	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: false})
	require.NoError(t, err)

	_, ok := reg.sysParent.GetChild("a")
	require.True(t, ok)
	_, ok = reg.dataParent.GetChild("a")
	require.True(t, ok)
	require.Nil(t, entry.Poll)

	raw, err := os.ReadFile(reg.pathFor("a"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"brokerName":"b"`)
}

func TestAddConnectionStartsPollWhenEnabled(t *testing.T) {
	reg := newTestRegistry(t)
	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, entry.Poll)
}

func TestStartAndStopPollUpdatesPollsActiveMetric(t *testing.T) {
	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg)

	sys := node.New("upstream", node.Internal)
	data := node.New("upstream", node.Internal)
	reg, err := New(Config{
		StorageRoot: t.TempDir(),
		SysParent:   sys,
		DataParent:  data,
		Metrics:     collector,
	})
	require.NoError(t, err)
	require.NoError(t, reg.EnsureStorage())

	require.Equal(t, float64(0), gaugeValue(t, promReg, "dsbroker_upstream_polls_active"))

	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, entry.Poll)
	require.Equal(t, float64(1), gaugeValue(t, promReg, "dsbroker_upstream_polls_active"))

	entry.Poll.pendingAction = PendingStop
	reg.applyPendingAction(entry.Poll)
	require.Equal(t, float64(0), gaugeValue(t, promReg, "dsbroker_upstream_polls_active"))
}

func TestGetAndNames(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x"})
	require.NoError(t, err)

	_, ok := reg.Get("missing")
	require.False(t, ok)
	entry, ok := reg.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", entry.Settings.Name)
	require.Equal(t, []string{"a"}, reg.Names())
}

func TestDeleteWithNoPollAppliesImmediately(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: false})
	require.NoError(t, err)

	require.NoError(t, reg.Delete("", "a"))

	_, ok := reg.Get("a")
	require.False(t, ok)
	_, err = os.Stat(reg.pathFor("a"))
	require.True(t, os.IsNotExist(err))
}

func TestDeleteUnknownNameReturnsNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	require.ErrorIs(t, reg.Delete("", "missing"), ErrNotFound)
}

func TestDeleteWithLivePollIsDeferredUntilDrain(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, reg.Delete("a", "a"))

	// The caller driving this turn is the same upstream being deleted, so
	// the action is deferred rather than applied inline.
	_, ok := reg.Get("a")
	require.True(t, ok)

	reg.DrainPending()

	_, ok = reg.Get("a")
	require.False(t, ok)
}

func TestDeleteFromADifferentLiveUpstreamAppliesImmediately(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, reg.Delete("some-other-upstream", "a"))

	_, ok := reg.Get("a")
	require.False(t, ok)
}

func TestOnEnableChangedStopsAndStartsPoll(t *testing.T) {
	reg := newTestRegistry(t)
	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, entry.Poll)

	enabledNode, ok := entry.Config.GetChild("enabled")
	require.True(t, ok)

	enabledNode.SetValue(false)
	// Disabling schedules a stop rather than tearing the poll down inline.
	require.NotNil(t, entry.Poll)
	reg.DrainPending()
	require.Nil(t, entry.Poll)

	enabledNode.SetValue(true)
	require.NotNil(t, entry.Poll)
}

func TestOnPropChangedWithoutLivePollRebuildsAndSaves(t *testing.T) {
	reg := newTestRegistry(t)
	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: false})
	require.NoError(t, err)

	urlNode, ok := entry.Config.GetChild("url")
	require.True(t, ok)
	urlNode.SetValue("wss://new")

	require.Equal(t, "wss://new", entry.Settings.URL)
	raw, err := os.ReadFile(reg.pathFor("a"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"url":"wss://new"`)
}

func TestOnPropChangedWithLivePollSchedulesReset(t *testing.T) {
	reg := newTestRegistry(t)
	entry, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Enabled: true})
	require.NoError(t, err)
	originalConfig := entry.Config

	urlNode, ok := entry.Config.GetChild("url")
	require.True(t, ok)
	urlNode.SetValue("wss://new")

	// Still the old entry until the reset drains.
	same, ok := reg.Get("a")
	require.True(t, ok)
	require.Same(t, originalConfig, same.Config)

	reg.DrainPending()

	reset, ok := reg.Get("a")
	require.True(t, ok)
	require.NotSame(t, originalConfig, reset.Config)
	require.Equal(t, "wss://new", reset.Settings.URL)
	require.NotNil(t, reset.Poll)
}

func TestLoadSkipsInvalidFilesAndLoadsValidOnes(t *testing.T) {
	dir := t.TempDir()
	sys := node.New("upstream", node.Internal)
	data := node.New("upstream", node.Internal)
	reg, err := New(Config{StorageRoot: dir, SysParent: sys, DataParent: data})
	require.NoError(t, err)
	require.NoError(t, reg.EnsureStorage())

	upstreamDir := filepath.Join(dir, "upstream")
	require.NoError(t, os.WriteFile(filepath.Join(upstreamDir, "bad"), []byte("not json"), 0o660))
	require.NoError(t, os.WriteFile(filepath.Join(upstreamDir, escapeName("good")),
		[]byte(`{"name":"good","brokerName":"b","url":"wss://x","enabled":false}`), 0o660))

	require.NoError(t, reg.Load())

	require.Equal(t, []string{"good"}, reg.Names())
}

func TestLoadOnMissingDirectoryIsNotAnError(t *testing.T) {
	sys := node.New("upstream", node.Internal)
	data := node.New("upstream", node.Internal)
	reg, err := New(Config{StorageRoot: t.TempDir(), SysParent: sys, DataParent: data})
	require.NoError(t, err)
	require.NoError(t, reg.Load())
	require.Empty(t, reg.Names())
}

func TestWriteSnapshotEncodesEveryEntry(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddConnection(Settings{Name: "a", BrokerName: "b", URL: "wss://x", Group: "ops", Enabled: false})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reg.WriteSnapshot(&buf))
	require.NotEmpty(t, buf.Bytes())
}

func TestWriteSnapshotOnEmptyRegistryWritesNothing(t *testing.T) {
	reg := newTestRegistry(t)
	var buf bytes.Buffer
	require.NoError(t, reg.WriteSnapshot(&buf))
	require.Empty(t, buf.Bytes())
}
