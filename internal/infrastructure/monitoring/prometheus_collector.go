package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Gauges
	clientsConnected prometheus.Gauge
	roomsActive      prometheus.Gauge
	recordingsActive prometheus.Gauge

	// Counters
	signalMessages   *prometheus.CounterVec
	audioChunks      prometheus.Counter
	audioBytes       prometheus.Counter
	deliveryFailures prometheus.Counter
	merges           *prometheus.CounterVec

	// Histograms
	mergeDuration prometheus.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_clients_connected",
			Help: "Number of currently connected signaling clients",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_rooms_active",
			Help: "Number of active rooms",
		}),

		recordingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_recordings_active",
			Help: "Number of rooms currently being recorded",
		}),

		signalMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_signal_messages_total",
			Help: "Total inbound signaling messages by type",
		}, []string{"type"}),

		audioChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_audio_chunks_total",
			Help: "Total binary audio chunks ingested",
		}),

		audioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_audio_bytes_total",
			Help: "Total binary audio bytes ingested",
		}),

		deliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "huddle_delivery_failures_total",
			Help: "Total best-effort deliveries that found a closed or backpressured connection",
		}),

		merges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_merges_total",
			Help: "Total merge attempts by outcome",
		}, []string{"status"}),

		mergeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "huddle_merge_duration_seconds",
			Help:    "Duration of external merge invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (c *Collector) RecordClientConnected()    { c.clientsConnected.Inc() }
func (c *Collector) RecordClientDisconnected() { c.clientsConnected.Dec() }

func (c *Collector) RecordRoomCreated() { c.roomsActive.Inc() }
func (c *Collector) RecordRoomEnded()   { c.roomsActive.Dec() }

func (c *Collector) RecordRecordingStarted() { c.recordingsActive.Inc() }
func (c *Collector) RecordRecordingStopped() { c.recordingsActive.Dec() }

func (c *Collector) RecordMessage(msgType string) {
	c.signalMessages.WithLabelValues(msgType).Inc()
}

func (c *Collector) RecordChunk(size int) {
	c.audioChunks.Inc()
	c.audioBytes.Add(float64(size))
}

func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFailures.Inc()
}

func (c *Collector) RecordMerge(status string, d time.Duration) {
	c.merges.WithLabelValues(status).Inc()
	c.mergeDuration.Observe(d.Seconds())
}
