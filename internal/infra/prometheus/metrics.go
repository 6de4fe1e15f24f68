// prometheus exports reconciliation and uniqueness outcomes as Prometheus metrics
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/uniqueness"
)

const namespace = "settle"

var ReconcileRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reconcile",
	Name:      "records_total",
	Help:      "Finished record mutations by outcome",
}, []string{"keyspace", "mutation", "outcome"})

var ReconcileAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "reconcile",
	Name:      "attempts",
	Help:      "Conditional write attempts per finished record",
	Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
}, []string{"keyspace"})

var ReconcilePasses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reconcile",
	Name:      "passes_total",
	Help:      "Reconciliation passes by result",
}, []string{"keyspace", "result"})

var UniquenessCreates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "uniqueness",
	Name:      "creates_total",
	Help:      "Entity creations by result",
}, []string{"result"})

const (
	passOk     = "ok"
	passFailed = "failed"

	created  = "created"
	rejected = "rejected"
)

// Observer feeds the package metrics. It is a reconcile.Observer and a uniqueness.Observer.
type Observer struct{}

var _ reconcile.Observer = Observer{}
var _ uniqueness.Observer = Observer{}

// Register adds the package metrics to the registerer, usually prometheus.DefaultRegisterer
func Register(registerer prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{ReconcileRecords, ReconcileAttempts, ReconcilePasses, UniquenessCreates} {
		if err := registerer.Register(c); err != nil {
			if _, already := err.(prometheus.AlreadyRegisteredError); !already {
				return err
			}
		}
	}
	return nil
}

func (Observer) ObserveRecord(keyspace record.Keyspace, report *reconcile.RecordReport) {
	ReconcileRecords.WithLabelValues(string(keyspace), string(report.Mutation), string(report.Outcome)).Inc()
	ReconcileAttempts.WithLabelValues(string(keyspace)).Observe(float64(report.Attempts))
}

func (Observer) ObservePass(keyspace record.Keyspace, report *reconcile.Report, err error) {
	result := passOk
	if err != nil {
		result = passFailed
	}
	ReconcilePasses.WithLabelValues(string(keyspace), result).Inc()
}

func (Observer) ObserveCreate(result *uniqueness.Result) {
	if result.Created {
		UniquenessCreates.WithLabelValues(created).Inc()
	} else {
		UniquenessCreates.WithLabelValues(rejected).Inc()
	}
}
