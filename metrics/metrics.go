// Package metrics exposes the Framer/handshake runtime counters as
// Prometheus collectors. Grounded on the exporter pattern in
// runZeroInc-sockstats' pkg/exporter/exporter.go: a struct of
// pre-registered collector handles with an explicit Register step,
// rather than package-level globals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector satisfies framer.Recorder and handshake.Recorder without
// either package importing prometheus directly.
type Collector struct {
	framesSent          prometheus.Counter
	framesReceived      prometheus.Counter
	framesRetransmitted prometheus.Counter
	framesAcked         prometheus.Counter
	duplicatesDropped   prometheus.Counter
	backupQueueDepth    prometheus.Gauge
	orderingQueueDepth  prometheus.Gauge
	handshakeState      *prometheus.GaugeVec
	rttSeconds          prometheus.Histogram
}

// New builds an unregistered Collector. Call Register to attach it to
// a prometheus.Registerer.
func New() *Collector {
	return &Collector{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raknetclient",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the socket, including retransmissions and fragments.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raknetclient",
			Name:      "frames_received_total",
			Help:      "Frames dispatched out of an inbound FrameSet.",
		}),
		framesRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raknetclient",
			Name:      "frames_retransmitted_total",
			Help:      "Frames resent from the backup queue in response to a Nack.",
		}),
		framesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raknetclient",
			Name:      "frames_acked_total",
			Help:      "FrameSet sequence numbers covered by incoming Acks, whether or not still in the backup queue.",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raknetclient",
			Name:      "duplicate_framesets_dropped_total",
			Help:      "Inbound FrameSets discarded as duplicates or already-acknowledged.",
		}),
		backupQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raknetclient",
			Name:      "backup_queue_depth",
			Help:      "FrameSets currently held for possible retransmission.",
		}),
		orderingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raknetclient",
			Name:      "ordering_queue_depth",
			Help:      "Frames held back across all order channels awaiting their predecessor.",
		}),
		handshakeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "raknetclient",
			Name:      "handshake_state",
			Help:      "1 for the handshake's current state, 0 otherwise.",
		}, []string{"state"}),
		rttSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "raknetclient",
			Name:      "rtt_seconds",
			Help:      "Observed round-trip time from ConnectedPing/ConnectedPong and the handshake timestamps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register attaches every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.framesSent, c.framesReceived, c.framesRetransmitted, c.framesAcked,
		c.duplicatesDropped, c.backupQueueDepth, c.orderingQueueDepth,
		c.handshakeState, c.rttSeconds,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) FrameSent()                    { c.framesSent.Inc() }
func (c *Collector) FrameReceived()                 { c.framesReceived.Inc() }
func (c *Collector) FrameRetransmitted()            { c.framesRetransmitted.Inc() }
func (c *Collector) FramesAcked(n int)              { c.framesAcked.Add(float64(n)) }
func (c *Collector) DuplicateFrameSetDropped()      { c.duplicatesDropped.Inc() }
func (c *Collector) SetBackupQueueDepth(n int)      { c.backupQueueDepth.Set(float64(n)) }
func (c *Collector) SetOrderingQueueDepth(n int)    { c.orderingQueueDepth.Set(float64(n)) }
func (c *Collector) SetHandshakeState(state string) {
	c.handshakeState.Reset()
	c.handshakeState.WithLabelValues(state).Set(1)
}
func (c *Collector) ObserveRTTSeconds(seconds float64) { c.rttSeconds.Observe(seconds) }
