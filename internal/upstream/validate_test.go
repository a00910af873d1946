package upstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEntryJSONAcceptsMinimalEntry(t *testing.T) {
	require.NoError(t, validateEntryJSON([]byte(`{"name":"a","brokerName":"b","url":"wss://x"}`)))
}

func TestValidateEntryJSONRejectsMissingRequiredField(t *testing.T) {
	require.Error(t, validateEntryJSON([]byte(`{"name":"a","brokerName":"b"}`)))
}

func TestValidateEntryJSONRejectsWrongType(t *testing.T) {
	require.Error(t, validateEntryJSON([]byte(`{"name":1,"brokerName":"b","url":"wss://x"}`)))
}

// enabled tolerates any type at the schema level; Settings.UnmarshalJSON is
// where a non-boolean (or absent) enabled defaults to true.
func TestValidateEntryJSONAcceptsNonBooleanEnabled(t *testing.T) {
	require.NoError(t, validateEntryJSON([]byte(`{"name":"a","brokerName":"b","url":"wss://x","enabled":"yes"}`)))
}
