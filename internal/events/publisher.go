// Package events is an optional publish-only NATS notifier for
// upstream-lifecycle and permission-denied occurrences, generalizing the
// teacher's singleton pkg/nats client down to the one verb this broker
// needs: Publish. There is no Subscribe surface and no durable stream
// configured, so this package cannot become a persistent message queue.
package events

import (
	"encoding/json"
	"time"

	"github.com/dsbroker/broker/pkg/log"
	"github.com/nats-io/nats.go"
)

const (
	SubjectUpstreamLifecycle = "dsbroker.upstream.lifecycle"
	SubjectPermissionDenied  = "dsbroker.permission.denied"
)

// Publisher publishes broker occurrences to NATS subjects. The zero value
// (and a nil *Publisher) publish nowhere and never block: Connect must
// succeed before Publish does anything.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials addr and returns a ready Publisher. An empty addr is not
// an error: it yields a Publisher that silently drops every event, so
// callers can wire events optionally without littering nil checks at call
// sites.
func Connect(addr string) (*Publisher, error) {
	if addr == "" {
		return &Publisher{}, nil
	}
	conn, err := nats.Connect(addr,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("events: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("events: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

// Close closes the underlying connection, if any.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

// UpstreamLifecycleEvent is the JSON payload published to
// SubjectUpstreamLifecycle.
type UpstreamLifecycleEvent struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// PermissionDeniedEvent is the JSON payload published to
// SubjectPermissionDenied.
type PermissionDeniedEvent struct {
	Path      string    `json:"path"`
	Groups    []string  `json:"groups"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishUpstreamLifecycle publishes an upstream transition. Errors are
// logged, not returned: a lost notification never blocks the registry
// operation that produced it.
func (p *Publisher) PublishUpstreamLifecycle(name, kind string) {
	p.publish(SubjectUpstreamLifecycle, UpstreamLifecycleEvent{
		Name: name, Kind: kind, Timestamp: time.Now(),
	})
}

// PublishPermissionDenied publishes a resolver denial.
func (p *Publisher) PublishPermissionDenied(path string, groups []string) {
	p.publish(SubjectPermissionDenied, PermissionDeniedEvent{
		Path: path, Groups: groups, Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("events: marshaling %s payload: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Warnf("events: publishing to %s: %v", subject, err)
	}
}
