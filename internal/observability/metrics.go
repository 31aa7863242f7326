package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. HTTP traffic is instrumented separately by the
// middleware package.
var (
	// JobTransitions counts jobs entering each status.
	JobTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_job_transitions_total",
			Help: "Extraction jobs entering each status.",
		},
		[]string{"status"},
	)

	// DuplicateHits counts duplicate short-circuits by where they were
	// detected: "lookup" before dispatch or "register" on a lost race.
	DuplicateHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_duplicate_hits_total",
			Help: "Jobs resolved to an existing recipe.",
		},
		[]string{"stage"},
	)

	// LedgerCredits sums credits moved by the ledger per operation and pool.
	LedgerCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_ledger_credits_total",
			Help: "Credits moved by the ledger, by operation and pool.",
		},
		[]string{"op", "credit_type"},
	)

	// LedgerRejections counts reserves refused for lack of credits.
	LedgerRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_ledger_insufficient_total",
			Help: "Reservations rejected for insufficient credits.",
		},
	)

	// RateLimited counts requests refused by the rate limiter, by route.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-caller rate limiter.",
		},
		[]string{"route"},
	)

	// UploadBytes records the size of accepted client video uploads.
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extraction_upload_bytes",
			Help:    "Size of client-uploaded videos in bytes.",
			Buckets: prometheus.ExponentialBuckets(256<<10, 2, 10), // 256KiB..128MiB
		},
	)

	// ReferralRedemptions counts successful code redemptions.
	ReferralRedemptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_redemptions_total",
			Help: "Successful referral code redemptions.",
		},
	)
)

func init() {
	prometheus.MustRegister(JobTransitions, DuplicateHits, LedgerCredits, LedgerRejections, ReferralRedemptions, RateLimited, UploadBytes)
}
