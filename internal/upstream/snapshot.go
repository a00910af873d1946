package upstream

import (
	"fmt"
	"io"
	"sort"

	"github.com/linkedin/goavro/v2"
)

// snapshotSchema describes one upstream entry as an Avro record. It omits
// Token, since a snapshot is meant for export/backup inspection, not for
// replaying credentials.
const snapshotSchema = `{
  "type": "record",
  "name": "UpstreamEntry",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "brokerName", "type": "string"},
    {"name": "url", "type": "string"},
    {"name": "group", "type": "string"},
    {"name": "enabled", "type": "boolean"}
  ]
}`

// WriteSnapshot encodes every currently registered entry's settings as an
// Avro object container file, with records sorted by name. The container's
// sync marker is random, so two snapshots of the same entry set differ in
// bytes. With no entries registered nothing is written.
func (r *Registry) WriteSnapshot(w io.Writer) error {
	names := r.Names()
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	codec, err := goavro.NewCodec(snapshotSchema)
	if err != nil {
		return fmt.Errorf("upstream: building snapshot codec: %w", err)
	}
	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: codec,
	})
	if err != nil {
		return fmt.Errorf("upstream: creating snapshot writer: %w", err)
	}

	records := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		entry, ok := r.Get(name)
		if !ok {
			continue
		}
		s := entry.Settings
		records = append(records, map[string]interface{}{
			"name":       s.Name,
			"brokerName": s.BrokerName,
			"url":        s.URL,
			"group":      s.Group,
			"enabled":    s.Enabled,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return writer.Append(records)
}
