/*
Package metrics provides the Prometheus collector for the servicing engine.

PURPOSE:
  Observes transaction posting and COB catch-up progress. Uses a private
  registry so tests can instantiate collectors without global-registry
  collisions; the HTTP handler for /metrics comes from Handler().

METRICS:
  loan_transactions_posted_total     counter, by type
  loan_transactions_failed_total     counter
  cob_days_processed_total           counter
  cob_catchup_runs_total             counter
  cob_accounts_behind                gauge (set at batch start)
  cob_account_catchup_seconds        histogram
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/loan-servicing/servicing"
)

type Collector struct {
	registry *prometheus.Registry

	transactionsPosted *prometheus.CounterVec
	transactionsFailed prometheus.Counter
	daysProcessed      prometheus.Counter
	catchUpRuns        prometheus.Counter
	accountsBehind     prometheus.Gauge
	accountCatchUp     prometheus.Histogram
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		transactionsPosted: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "loan_transactions_posted_total",
			Help: "Total transactions posted to the ledger",
		}, []string{"type"}),
		transactionsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "loan_transactions_failed_total",
			Help: "Total transaction postings rejected",
		}),
		daysProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "cob_days_processed_total",
			Help: "Total business days closed across all accounts",
		}),
		catchUpRuns: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "cob_catchup_runs_total",
			Help: "Total catch-up batches started",
		}),
		accountsBehind: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "cob_accounts_behind",
			Help: "Accounts trailing the business date at batch start",
		}),
		accountCatchUp: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "cob_account_catchup_seconds",
			Help:    "Time to replay one account's full backlog",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordPosted counts a successful ledger posting.
func (c *Collector) RecordPosted(txType servicing.TransactionType) {
	c.transactionsPosted.WithLabelValues(string(txType)).Inc()
}

// RecordRejected counts a rejected posting.
func (c *Collector) RecordRejected() {
	c.transactionsFailed.Inc()
}

// =============================================================================
// CatchUpObserver implementation
// =============================================================================

func (c *Collector) CatchUpStarted(accounts int) {
	c.catchUpRuns.Inc()
	c.accountsBehind.Set(float64(accounts))
}

func (c *Collector) AccountCaughtUp(_ servicing.AccountID, daysProcessed int, took time.Duration) {
	c.daysProcessed.Add(float64(daysProcessed))
	c.accountCatchUp.Observe(took.Seconds())
}

func (c *Collector) AccountFailed(servicing.AccountID, error) {}

func (c *Collector) CatchUpFinished(succeeded, failed int) {
	c.accountsBehind.Set(0)
}
