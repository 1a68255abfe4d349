package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "canistream"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	VideosStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "videos_stored",
		Help:      "Number of video records held by the backend.",
	})

	ChunksStoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_chunks_stored_total",
		Help:      "Total chunks accepted by the backend by kind.",
	}, []string{"kind"})

	ChunkBytesStoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_chunk_bytes_stored_total",
		Help:      "Total chunk payload bytes accepted by the backend.",
	})

	ChunksUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_chunks_total",
		Help:      "Total chunks successfully uploaded by the client.",
	})

	ChunkRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_chunk_retries_total",
		Help:      "Total chunk upload retries.",
	})

	ChunkFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_chunk_failures_total",
		Help:      "Total chunks that exhausted their retry budget.",
	})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Total payload bytes uploaded by the client.",
	})

	TranscodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcode_duration_seconds",
		Help:      "Duration of FFmpeg transcode jobs in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	TranscodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcode_failures_total",
		Help:      "Total number of transcode failures.",
	})

	SegmentCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_cache_hits_total",
		Help:      "Segment requests served from the session cache.",
	})

	SegmentFetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_segment_fetches_total",
		Help:      "Segment fetch sequences issued to the backend.",
	})

	SegmentFillersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_filler_substitutions_total",
		Help:      "Segments replaced by the filler packet, by reason.",
	}, []string{"reason"})

	SegmentsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_segments_in_flight",
		Help:      "Segment fetches currently in flight across sessions.",
	})

	PlaybackSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_sessions",
		Help:      "Number of open playback sessions.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected progress WebSocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		VideosStored,
		ChunksStoredTotal,
		ChunkBytesStoredTotal,
		ChunksUploadedTotal,
		ChunkRetriesTotal,
		ChunkFailuresTotal,
		UploadBytesTotal,
		TranscodeDuration,
		TranscodeFailuresTotal,
		SegmentCacheHitsTotal,
		SegmentFetchesTotal,
		SegmentFillersTotal,
		SegmentsInFlight,
		PlaybackSessions,
		WSClients,
	)
}
