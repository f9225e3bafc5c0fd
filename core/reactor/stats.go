package reactor

import (
	"encoding/json"
	"fmt"

	"github.com/coroweb/httpcore/core/pools"
)

// Stats is a point-in-time view of the Reactor's pooling behavior. There
// is no separate context/request pool here: Context and Request are
// per-transaction stack values owned by a connection's Task, not heap
// objects recycled across connections, so only the connection pool and
// the admit worker pool have anything to report.
type Stats struct {
	Connection ConnectionStats       `json:"connection"`
	Admit      pools.WorkerPoolStats `json:"admit"`
}

// ConnectionStats mirrors pools.ConnectionPool.Stats in struct form so it
// serializes predictably regardless of that method's return order.
type ConnectionStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	HitRate float64 `json:"hit_rate"`
}

// PoolStats reports current pool hit rates across every shard's shared
// connection pool and the accept-side admit worker pool.
func (rc *Reactor) PoolStats() Stats {
	gets, puts, hitRate := rc.connPool.Stats()
	return Stats{
		Connection: ConnectionStats{Gets: gets, Puts: puts, HitRate: hitRate},
		Admit:      rc.admit.Stats(),
	}
}

// PoolStatsJSON renders PoolStats as indented JSON. The admin RPC's Stats
// method returns PoolStats itself; nothing in this module serves this
// rendering.
func (rc *Reactor) PoolStatsJSON() string {
	data, _ := json.MarshalIndent(rc.PoolStats(), "", "  ")
	return string(data)
}

// PoolStatsText renders PoolStats as a human-readable report.
func (rc *Reactor) PoolStatsText() string {
	s := rc.PoolStats()
	return fmt.Sprintf(`Reactor Pool Statistics
=======================

Connection Pool:
  Gets:     %d
  Puts:     %d
  Hit Rate: %.2f%%

Admit Worker Pool:
  Submitted: %d
  Completed: %d
  Steals OK: %d
  Steals Failed: %d
`,
		s.Connection.Gets, s.Connection.Puts, s.Connection.HitRate*100,
		s.Admit.TasksSubmitted, s.Admit.TasksCompleted, s.Admit.StealsSuccess, s.Admit.StealsFailed,
	)
}
