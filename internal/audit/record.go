package audit

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dsbroker/broker/pkg/log"
	"github.com/dsbroker/broker/pkg/permission"
)

// RecordDenial logs a resolution that came back permission.None against a
// secured (non-unsecured-root) node, for path under the caller's groups.
func (l *Log) RecordDenial(path string, groups []string) {
	query, args, err := sq.Insert("permission_denials").
		Columns("path", "groups", "occurred_at").
		Values(path, strings.Join(groups, ","), time.Now().Unix()).
		ToSql()
	if err != nil {
		log.Errorf("audit: building denial insert: %v", err)
		return
	}
	if _, err := l.db.Exec(query, args...); err != nil {
		log.Errorf("audit: recording denial for %q: %v", path, err)
	}
}

// RecordLifecycle logs an upstream entry's name and transition kind.
func (l *Log) RecordLifecycle(name, kind string) {
	query, args, err := sq.Insert("upstream_events").
		Columns("name", "kind", "occurred_at").
		Values(name, kind, time.Now().Unix()).
		ToSql()
	if err != nil {
		log.Errorf("audit: building lifecycle insert: %v", err)
		return
	}
	if _, err := l.db.Exec(query, args...); err != nil {
		log.Errorf("audit: recording %s event for %q: %v", kind, name, err)
	}
}

// ResolveAndRecord resolves path under root for groups via resolve, and
// records a denial if the result is permission.None. It exists so callers
// observing the resolver (e.g. the admin API) get audit logging for free
// without the resolver package itself depending on audit.
func ResolveAndRecord(l *Log, resolve func() permission.Level, path string, groups []string) permission.Level {
	level := resolve()
	if l != nil && level == permission.None {
		l.RecordDenial(path, groups)
	}
	return level
}
