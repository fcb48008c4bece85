package hashtable

import (
	"github.com/prometheus/client_golang/prometheus"
)

// domainLabel names epoch.Record/epoch.Data for metric labels.
var domainLabel = [2]string{"record", "data"}

var (
	sizeDesc = prometheus.NewDesc(
		"hashtable_size", "Number of committed records.", nil, nil)
	bucketsDesc = prometheus.NewDesc(
		"hashtable_buckets", "Number of buckets in the current data array.", nil, nil)
	resizeCountDesc = prometheus.NewDesc(
		"hashtable_resize_total", "Number of upsizes performed over the table's lifetime.", nil, nil)
	tryLaterCountDesc = prometheus.NewDesc(
		"hashtable_try_later_total", "Number of operations that returned TryLater.", nil, nil)
	gcPendingDesc = prometheus.NewDesc(
		"hashtable_gc_pending", "Objects retired but not yet reclaimed, by domain.",
		[]string{"domain"}, nil)
	gcRetiredDesc = prometheus.NewDesc(
		"hashtable_gc_retired_total", "Objects retired over the table's lifetime, by domain.",
		[]string{"domain"}, nil)
	gcFreedDesc = prometheus.NewDesc(
		"hashtable_gc_freed_total", "Objects reclaimed over the table's lifetime, by domain.",
		[]string{"domain"}, nil)
)

// Collector adapts a Table to prometheus.Collector. It holds no
// mutable per-metric cache: every value is read fresh from the Table
// and its epoch.Registry on each Collect, since both are already safe
// for concurrent access.
type Collector struct {
	table *Table
}

// NewCollector wraps t for registration with a prometheus.Registry.
func NewCollector(t *Table) *Collector {
	return &Collector{table: t}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sizeDesc
	ch <- bucketsDesc
	ch <- resizeCountDesc
	ch <- tryLaterCountDesc
	ch <- gcPendingDesc
	ch <- gcRetiredDesc
	ch <- gcFreedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	t := c.table
	ch <- prometheus.MustNewConstMetric(sizeDesc, prometheus.GaugeValue, float64(t.Size()))
	ch <- prometheus.MustNewConstMetric(bucketsDesc, prometheus.GaugeValue, float64(t.data().bucketsCount))
	ch <- prometheus.MustNewConstMetric(resizeCountDesc, prometheus.CounterValue, float64(t.resizeCount.Load()))
	ch <- prometheus.MustNewConstMetric(tryLaterCountDesc, prometheus.CounterValue, float64(t.tryLaterCount.Load()))

	st := t.gc.Stats()
	for d := range domainLabel {
		ch <- prometheus.MustNewConstMetric(gcPendingDesc, prometheus.GaugeValue, float64(st.Pending[d]), domainLabel[d])
		ch <- prometheus.MustNewConstMetric(gcRetiredDesc, prometheus.CounterValue, float64(st.Retired[d]), domainLabel[d])
		ch <- prometheus.MustNewConstMetric(gcFreedDesc, prometheus.CounterValue, float64(st.Freed[d]), domainLabel[d])
	}
}
