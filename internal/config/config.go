// Package config loads the broker's JSON configuration file, following the
// teacher-repo pattern of package-level defaults overridden by an
// optional, schema-validated file on disk.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// BrokerConfig is the root of the broker's configuration file.
type BrokerConfig struct {
	// StorageRoot is where the upstream registry's per-entry files live,
	// under <StorageRoot>/upstream/.
	StorageRoot string `json:"storage-root"`

	// AdminAddr is the listen address for the read-only admin API. Empty
	// disables it.
	AdminAddr string `json:"admin-addr"`

	// AuditDB is the sqlite3 DSN for the audit log.
	AuditDB string `json:"audit-db"`

	// NatsURL, if set, is the NATS server the event publisher connects
	// to. Empty means lifecycle/denial events are not published; they are
	// still recorded in the audit log.
	NatsURL string `json:"nats-url"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string `json:"metrics-addr"`
}

// Keys holds the active configuration. It starts out as the defaults below
// and is overwritten in place by Init when a config file is present.
var Keys = BrokerConfig{
	StorageRoot: "./var",
	AdminAddr:   ":8070",
	AuditDB:     "./var/audit.db",
	MetricsAddr: ":9090",
}

// Init loads path into Keys. A missing file is not an error — the defaults
// above are used as-is. A present file that fails schema validation, has
// unknown fields, or fails to parse is fatal, since it indicates an
// operator mistake rather than an absent optional file.
func Init(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := validate(raw); err != nil {
		return fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if Keys.StorageRoot == "" {
		return fmt.Errorf("config: storage-root must not be empty")
	}
	return nil
}
