package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsUnmarshalDefaultsEnabledToTrueWhenAbsent(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","brokerName":"b","url":"wss://x"}`), &s))
	require.True(t, s.Enabled)
}

func TestSettingsUnmarshalDefaultsEnabledToTrueWhenNonBoolean(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","brokerName":"b","url":"wss://x","enabled":"nope"}`), &s))
	require.True(t, s.Enabled)
}

func TestSettingsUnmarshalHonorsExplicitFalse(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","brokerName":"b","url":"wss://x","enabled":false}`), &s))
	require.False(t, s.Enabled)
}

func TestSettingsUnmarshalIgnoresUnknownKeys(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","brokerName":"b","url":"wss://x","bogus":1}`), &s))
	require.Equal(t, "a", s.Name)
}

func TestSettingsMarshalRoundTrips(t *testing.T) {
	s := Settings{Name: "a", BrokerName: "b", URL: "wss://x", Token: "t", Group: "ops", Enabled: true}
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var out Settings
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, s.Name, out.Name)
	require.Equal(t, s.BrokerName, out.BrokerName)
	require.Equal(t, s.URL, out.URL)
	require.Equal(t, s.Token, out.Token)
	require.Equal(t, s.Group, out.Group)
	require.Equal(t, s.Enabled, out.Enabled)
}

func TestSettingsValidateRequiresNameBrokerNameAndURL(t *testing.T) {
	require.NoError(t, Settings{Name: "a", BrokerName: "b", URL: "wss://x"}.validate())
	require.ErrorIs(t, Settings{BrokerName: "b", URL: "wss://x"}.validate(), ErrInvalidParameter)
	require.ErrorIs(t, Settings{Name: "a", URL: "wss://x"}.validate(), ErrInvalidParameter)
	require.ErrorIs(t, Settings{Name: "a", BrokerName: "b"}.validate(), ErrInvalidParameter)
}
