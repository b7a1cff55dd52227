package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditPoolStats is a snapshot of the postgres pool behind the audit sink.
type AuditPoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
}

type poolGauge struct {
	desc  *prometheus.Desc
	value func(AuditPoolStats) int32
}

// auditPoolCollector reads the pool at scrape time. It is only registered
// when the audit sink is postgres.
type auditPoolCollector struct {
	stats  func() AuditPoolStats
	gauges []poolGauge
}

func newAuditPoolCollector(stats func() AuditPoolStats) *auditPoolCollector {
	gauge := func(name, help string, value func(AuditPoolStats) int32) poolGauge {
		return poolGauge{desc: prometheus.NewDesc(name, help, nil, nil), value: value}
	}
	return &auditPoolCollector{
		stats: stats,
		gauges: []poolGauge{
			gauge("langfuse_mcp_audit_db_pool_total_conns", "Connections open in the audit database pool.",
				func(s AuditPoolStats) int32 { return s.Total }),
			gauge("langfuse_mcp_audit_db_pool_idle_conns", "Idle connections in the audit database pool.",
				func(s AuditPoolStats) int32 { return s.Idle }),
			gauge("langfuse_mcp_audit_db_pool_acquired_conns", "Connections currently writing audit batches.",
				func(s AuditPoolStats) int32 { return s.Acquired }),
			gauge("langfuse_mcp_audit_db_pool_max_conns", "Configured size limit of the audit database pool.",
				func(s AuditPoolStats) int32 { return s.Max }),
		},
	}
}

func (c *auditPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *auditPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(g.value(s)))
	}
}
