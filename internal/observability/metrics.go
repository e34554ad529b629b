package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "detections_total",
		Help:      "Total number of persisted detection events",
	}, []string{"method"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in submitted images",
	}, []string{"method"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched to a registered citizen",
	}, []string{"method"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facewatch",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "gallery_size",
		Help:      "Number of citizens in the most recently built gallery",
	})

	GallerySkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facewatch",
		Name:      "gallery_skipped_total",
		Help:      "Citizens left out of a gallery build",
	}, []string{"reason"})

	GalleryBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facewatch",
		Name:      "gallery_build_duration_seconds",
		Help:      "Duration of gallery builds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "queue_depth",
		Help:      "Number of pending detection jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facewatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facewatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
