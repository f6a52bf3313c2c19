// Package metrics exposes the bus master's runtime counters as a
// Prometheus collector (spec.md §8), modeled on the conniver exporter's
// Describe/Collect Collector pattern but built from plain atomic
// counters instead of a per-connection map, since this bus has exactly
// one collector's worth of state to report.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "poolbus"

// Collector implements prometheus.Collector and also satisfies
// engine.Metrics, so it can be handed directly to engine.New.
type Collector struct {
	transactionsStarted   uint64
	transactionsTimedOut  uint64
	transactionsCompleted uint64
	checksumErrors        uint64

	mu        sync.Mutex
	connected map[byte]bool
	queueLen  int

	descTxnStarted   *prometheus.Desc
	descTxnTimedOut  *prometheus.Desc
	descTxnCompleted *prometheus.Desc
	descChecksumErr  *prometheus.Desc
	descSlaveUp      *prometheus.Desc
	descQueueDepth   *prometheus.Desc
}

// New returns a Collector ready to register with a prometheus.Registry.
func New() *Collector {
	return &Collector{
		connected: make(map[byte]bool),

		descTxnStarted: prometheus.NewDesc(
			namespace+"_transactions_started_total", "Request frames written to the bus.", nil, nil),
		descTxnTimedOut: prometheus.NewDesc(
			namespace+"_transactions_timed_out_total", "Transactions that hit the response deadline with no reply.", nil, nil),
		descTxnCompleted: prometheus.NewDesc(
			namespace+"_transactions_completed_total", "Transactions that received and parsed a reply.", nil, nil),
		descChecksumErr: prometheus.NewDesc(
			namespace+"_checksum_errors_total", "Replies dropped for a checksum mismatch.", nil, nil),
		descSlaveUp: prometheus.NewDesc(
			namespace+"_slave_connected", "1 if the slave at this address is currently connected, 0 otherwise.",
			[]string{"address"}, nil),
		descQueueDepth: prometheus.NewDesc(
			namespace+"_queue_depth", "Number of frames pending transmission or reply, sampled each time a frame is transmitted.", nil, nil),
	}
}

func (c *Collector) TransactionStarted()   { atomic.AddUint64(&c.transactionsStarted, 1) }
func (c *Collector) TransactionTimedOut()  { atomic.AddUint64(&c.transactionsTimedOut, 1) }
func (c *Collector) TransactionCompleted() { atomic.AddUint64(&c.transactionsCompleted, 1) }
func (c *Collector) ChecksumError()        { atomic.AddUint64(&c.checksumErrors, 1) }

func (c *Collector) SlaveConnected(addr byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[addr] = true
}

func (c *Collector) SlaveDisconnected(addr byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[addr] = false
}

func (c *Collector) QueueDepth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueLen = n
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.descTxnStarted
	descs <- c.descTxnTimedOut
	descs <- c.descTxnCompleted
	descs <- c.descChecksumErr
	descs <- c.descSlaveUp
	descs <- c.descQueueDepth
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.descTxnStarted, prometheus.CounterValue, float64(atomic.LoadUint64(&c.transactionsStarted)))
	metrics <- prometheus.MustNewConstMetric(c.descTxnTimedOut, prometheus.CounterValue, float64(atomic.LoadUint64(&c.transactionsTimedOut)))
	metrics <- prometheus.MustNewConstMetric(c.descTxnCompleted, prometheus.CounterValue, float64(atomic.LoadUint64(&c.transactionsCompleted)))
	metrics <- prometheus.MustNewConstMetric(c.descChecksumErr, prometheus.CounterValue, float64(atomic.LoadUint64(&c.checksumErrors)))

	c.mu.Lock()
	defer c.mu.Unlock()
	metrics <- prometheus.MustNewConstMetric(c.descQueueDepth, prometheus.GaugeValue, float64(c.queueLen))
	for addr, up := range c.connected {
		val := 0.0
		if up {
			val = 1.0
		}
		metrics <- prometheus.MustNewConstMetric(c.descSlaveUp, prometheus.GaugeValue, val, addrLabel(addr))
	}
}

func addrLabel(addr byte) string {
	const hex = "0123456789abcdef"
	return "0x" + string([]byte{hex[addr>>4], hex[addr&0xf]})
}
