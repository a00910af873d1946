package metrics

import (
	"fmt"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// EncodeLineProtocol renders a snapshot of every counter as InfluxDB
// line-protocol, one line per metric, for shipping to a metrics sink that
// ingests line protocol.
func (c *Collector) EncodeLineProtocol(at time.Time) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	snap := c.snapshot()

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Second)

	for level, count := range snap.resolutionCounts {
		enc.StartLine("dsbroker_permission_resolutions_total")
		enc.AddTag("level", level)
		enc.AddField("count", lineprotocol.MustNewValue(count))
		enc.EndLine(at)
	}

	enc.StartLine("dsbroker_upstream_polls_active")
	enc.AddField("count", lineprotocol.MustNewValue(snap.pollsActiveCount))
	enc.EndLine(at)

	for action, count := range snap.pendingActionCount {
		enc.StartLine("dsbroker_pending_actions_total")
		enc.AddTag("action", action)
		enc.AddField("count", lineprotocol.MustNewValue(count))
		enc.EndLine(at)
	}

	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("metrics: encoding line-protocol snapshot: %w", err)
	}
	return enc.Bytes(), nil
}
