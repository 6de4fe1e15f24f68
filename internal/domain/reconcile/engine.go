// reconcile brings the persisted children of one parent into agreement with a desired-state
// snapshot delivered at some event timestamp.
//
// There are no locks and no cross-record transactions: every record is written on its own
// with a "not exists OR stored timestamp < event timestamp" conditional write, and a failed
// condition is resolved by a strong re-read. The result is the same as if events had been
// applied in timestamp order, however they were delivered or interleaved.
package reconcile

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/tracing"
)

type Engine interface {

	// Reconcile observes the persisted children of aggregationKey, diffs them against the
	// desired snapshot, and applies additions, updates and soft deletions at eventTimestamp.
	//
	// Conflicts are never returned as errors; they show up as per-record outcomes. An error
	// means the store failed or returned corrupt data: the partial Report covers the records
	// that finished, and the whole call is safe to retry.
	Reconcile(ctx context.Context, aggregationKey record.AggregationKey, desired []record.Record, eventTimestamp metadata.Timestamp) (*Report, error)

	// Keyspace is where this Engine's records live
	Keyspace() record.Keyspace
}

type impl struct {
	store    record.Store
	keyspace record.Keyspace
	settings Settings
	tracer   tracing.Tracer
	observer Observer
}

// NewEngine returns an Engine for the children stored in one Keyspace.
//
// observer may be nil
func NewEngine(store record.Store, keyspace record.Keyspace, settings Settings, tracer tracing.Tracer, observer Observer) Engine {
	return &impl{
		store:    store,
		keyspace: keyspace,
		settings: settings.withDefaults(),
		tracer:   tracer,
		observer: observer,
	}
}

func (e *impl) Keyspace() record.Keyspace {
	return e.keyspace
}

// pendingMutation is one record's work for a pass
type pendingMutation struct {
	mutation Mutation
	key      record.Key
	// desired for adds and updates, persisted for deletes
	base record.Record
}

func (e *impl) Reconcile(ctx context.Context, aggregationKey record.AggregationKey, desired []record.Record, eventTimestamp metadata.Timestamp) (*Report, error) {
	report := &Report{
		Keyspace:       e.keyspace,
		AggregationKey: aggregationKey,
		EventTimestamp: eventTimestamp,
	}
	err := e.reconcile(ctx, report, desired)
	if e.observer != nil {
		e.observer.ObservePass(e.keyspace, report, err)
	}
	if err != nil {
		return report, err
	}
	log.Info().
		Str("keyspace", string(e.keyspace)).
		Str("aggregation_key", string(aggregationKey)).
		Int64("event_timestamp", int64(eventTimestamp)).
		Int("committed", report.Count(Committed)).
		Int("superseded", report.Count(Superseded)).
		Int("abandoned", report.Count(Abandoned)).
		Msg("Reconciled")
	return report, nil
}

func (e *impl) reconcile(ctx context.Context, report *Report, desired []record.Record) error {
	if err := report.EventTimestamp.Validate(); err != nil {
		return record.InvalidInput{Reason: err.Error()}
	}
	if report.AggregationKey == "" {
		return record.InvalidInput{Reason: "aggregation key is required"}
	}
	if err := validateSnapshot(desired); err != nil {
		return err
	}

	persisted, err := e.observe(ctx, report.AggregationKey)
	if err != nil {
		return err
	}
	diff := ComputeDiff(persisted, desired)
	log.Debug().
		Str("keyspace", string(e.keyspace)).
		Str("aggregation_key", string(report.AggregationKey)).
		Int("to_add", len(diff.ToAdd)).
		Int("to_update", len(diff.ToUpdate)).
		Int("to_delete", len(diff.ToDelete)).
		Msg("Computed diff")

	mutations := make([]pendingMutation, 0, len(diff.ToAdd)+len(diff.ToUpdate)+len(diff.ToDelete))
	for _, r := range diff.ToUpdate {
		mutations = append(mutations, pendingMutation{mutation: Update, key: r.Key, base: r})
	}
	for _, r := range diff.ToAdd {
		mutations = append(mutations, pendingMutation{mutation: Add, key: r.Key, base: r})
	}
	for _, r := range diff.ToDelete {
		mutations = append(mutations, pendingMutation{mutation: Delete, key: r.Key, base: r})
	}

	results := make([]*RecordReport, len(mutations))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(int(e.settings.Parallelism))
	for i := range mutations {
		i := i
		group.Go(func() error {
			rr, err := e.apply(groupCtx, report.AggregationKey, report.EventTimestamp, &mutations[i])
			if err != nil {
				return err
			}
			results[i] = rr
			if e.observer != nil {
				e.observer.ObserveRecord(e.keyspace, rr)
			}
			return nil
		})
	}
	err = group.Wait()

	for _, rr := range results {
		if rr != nil {
			report.Records = append(report.Records, *rr)
		}
	}
	sort.Slice(report.Records, func(i, j int) bool {
		return report.Records[i].Key < report.Records[j].Key
	})
	return err
}

// observe reads what the index currently believes belongs to the parent. It may miss very
// recent writes; the per-record conditional writes make up for that.
func (e *impl) observe(ctx context.Context, aggregationKey record.AggregationKey) ([]record.Record, error) {
	span, spanCtx := e.tracer.StartSpan(ctx, "reconcile-observe", "db")
	span.SetLabel("keyspace", string(e.keyspace))
	defer span.End()
	persisted, err := e.store.QueryByAggregationKey(spanCtx, e.keyspace, aggregationKey, record.Eventual)
	if err != nil {
		return nil, err
	}
	for _, p := range persisted {
		if err := p.Timestamp.Validate(); err != nil {
			return nil, record.CorruptRecord{Keyspace: e.keyspace, Key: p.Key, Reason: err.Error()}
		}
	}
	return persisted, nil
}

func (e *impl) buildTarget(aggregationKey record.AggregationKey, eventTimestamp metadata.Timestamp, m *pendingMutation) record.Record {
	if m.mutation == Delete {
		target := m.base.Copy()
		target.IntoDeleted(eventTimestamp)
		return target
	}
	target := m.base.Copy()
	target.AggregationKey = aggregationKey
	target.Timestamp = eventTimestamp
	target.IsDeleted = false
	return target
}

// apply runs the compare-and-swap loop for a single record.
//
// Each failed condition is followed by a strong read: a stored timestamp at or past the event
// timestamp is final (Superseded), and a stored timestamp below it can only be seen again if a
// competing write landed in between, so the loop ends after finitely many attempts.
func (e *impl) apply(ctx context.Context, aggregationKey record.AggregationKey, eventTimestamp metadata.Timestamp, m *pendingMutation) (*RecordReport, error) {
	span, ctx := e.tracer.StartSpan(ctx, "reconcile-apply", "db")
	span.SetLabel("keyspace", string(e.keyspace))
	span.SetLabel("mutation", string(m.mutation))
	defer span.End()

	rr := &RecordReport{Key: m.key, Mutation: m.mutation}
	predicate := record.NotExistsOrOlderThan(eventTimestamp)
	target := e.buildTarget(aggregationKey, eventTimestamp, m)
	logger := log.With().
		Str("keyspace", string(e.keyspace)).
		Str("key", string(m.key)).
		Str("mutation", string(m.mutation)).
		Int64("event_timestamp", int64(eventTimestamp)).
		Logger()

	for {
		if rr.Attempts >= e.settings.MaxAttempts {
			rr.Outcome = Abandoned
			rr.Reason = RetriesExhausted
			logger.Warn().Uint("attempts", rr.Attempts).Msg("Gave up on record, retries exhausted")
			return rr, nil
		}
		rr.Attempts++

		err := e.store.ConditionalWrite(ctx, e.keyspace, &target, predicate)
		var predicateFailed record.PredicateFailed
		switch {
		case err == nil:
			rr.Outcome = Committed
			logger.Debug().Uint("attempts", rr.Attempts).Msg("Committed")
			return rr, nil
		case errors.As(err, &predicateFailed):
		default:
			return nil, err
		}

		current, err := e.store.Get(ctx, e.keyspace, m.key, record.Strong)
		var notFound record.NotFound
		switch {
		case errors.As(err, &notFound):
			if m.mutation != Delete && e.settings.OnVanished == ResurrectVanished {
				logger.Debug().Msg("Record vanished after a failed condition, retrying as an add")
				continue
			}
			rr.Outcome = Abandoned
			rr.Reason = Vanished
			logger.Warn().Msg("Record vanished after a failed condition, dropping mutation")
			return rr, nil
		case err != nil:
			return nil, err
		}
		if err := current.Timestamp.Validate(); err != nil {
			return nil, record.CorruptRecord{Keyspace: e.keyspace, Key: m.key, Reason: err.Error()}
		}

		if !current.Timestamp.Before(eventTimestamp) {
			rr.Outcome = Superseded
			logger.Debug().
				Int64("stored_timestamp", int64(current.Timestamp)).
				Msg("Superseded by a fresher write")
			return rr, nil
		}

		// Stored is still older: the reload itself raced another write. Go again from the
		// refreshed state.
		logger.Debug().Int64("stored_timestamp", int64(current.Timestamp)).Msg("Retrying from refreshed state")
		if m.mutation == Delete {
			refreshed := current.Copy()
			refreshed.IntoDeleted(eventTimestamp)
			target = refreshed
		}
	}
}
