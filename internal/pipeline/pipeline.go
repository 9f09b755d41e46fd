package pipeline

import (
	"bytes"
	"context"
	"os"
	"time"

	"anoncal/internal/config"
	"anoncal/internal/ics"
	appLog "anoncal/internal/log"
	"anoncal/internal/model"
	"anoncal/internal/output"
	"anoncal/internal/sanitize"
)

// Fetcher supplies raw document bytes for a source URL, or a final
// failure after the retry policy is exhausted.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Result summarizes one pipeline run.
type Result struct {
	EventsIn  int
	EventsOut int
	// Unchanged means the rendered output was byte-identical to the
	// existing artifact, so the commit was skipped.
	Unchanged bool
	Bytes     int
}

// Run executes one full fetch → parse → sanitize → serialize →
// validate → commit cycle. Any fatal error aborts before the commit
// stage, so the destination artifact always holds a complete prior
// output.
func Run(ctx context.Context, cfg *config.Config, fetcher Fetcher, now time.Time) (Result, error) {
	var res Result

	loc := cfg.Location()
	now = now.In(loc)

	body, err := fetcher.Fetch(ctx, cfg.SourceURL)
	if err != nil {
		return res, err
	}

	records, err := ics.ParseICS(body)
	if err != nil {
		return res, err
	}
	res.EventsIn = len(records)

	policy := sanitize.Policy{
		Summary:      cfg.Summary,
		Description:  cfg.Description,
		KeepLocation: cfg.KeepLocation,
	}

	var events []model.AnonymizedEvent
	if cfg.MergeAdjacentStays {
		events = buildMergedStays(records, policy, loc, now, cfg.RetentionDays)
	} else {
		events = buildEvents(records, policy, loc, now, cfg)
	}
	res.EventsOut = len(events)

	rendered, err := ics.Serialize(events, loc)
	if err != nil {
		return res, err
	}
	if err := ics.Validate(rendered, len(events)); err != nil {
		return res, err
	}
	res.Bytes = len(rendered)

	if prior, err := os.ReadFile(cfg.OutputPath); err == nil && bytes.Equal(prior, []byte(rendered)) {
		res.Unchanged = true
		appLog.Info("pipeline: output unchanged, commit skipped",
			"path", cfg.OutputPath, "events", res.EventsOut)
		return res, nil
	}

	if err := output.Commit(cfg.OutputPath, []byte(rendered)); err != nil {
		return res, err
	}

	appLog.Info("pipeline: committed sanitized calendar",
		"path", cfg.OutputPath,
		"events_in", res.EventsIn,
		"events_out", res.EventsOut,
		"bytes", res.Bytes,
	)
	return res, nil
}

// buildEvents runs the per-event stages in order: scrub, derive
// identifier, normalize timing, retention filter. Output preserves the
// source's relative event order.
func buildEvents(records []model.EventRecord, policy sanitize.Policy, loc *time.Location, now time.Time, cfg *config.Config) []model.AnonymizedEvent {
	events := make([]model.AnonymizedEvent, 0, len(records))

	for _, rec := range records {
		scrubbed := policy.Scrub(rec)
		// The identifier hashes raw pre-normalization timing so it does
		// not couple to the timezone choice.
		uid := sanitize.DeriveUID(rec)
		timing := sanitize.Normalize(rec, loc, cfg.ForceAllDay)

		if !sanitize.Retain(timing, rec.RRule, now, cfg.RetentionDays) {
			appLog.Debug("pipeline: dropped stale event", "uid", uid, "end", timing.End)
			continue
		}

		events = append(events, model.AnonymizedEvent{
			UID:          uid,
			Start:        timing.Start,
			End:          timing.End,
			AllDay:       timing.AllDay,
			Summary:      scrubbed.Prop("SUMMARY"),
			Description:  scrubbed.Prop("DESCRIPTION"),
			Location:     scrubbed.Prop("LOCATION"),
			RRule:        rec.RRule,
			RDate:        rec.RDate,
			ExDate:       rec.ExDate,
			RecurrenceID: rec.RecurrenceID,
			DTStamp:      rec.DTStamp,
			HasSequence:  rec.HasSequence,
		})
	}

	return events
}

// buildMergedStays replaces the source events entirely with merged
// all-day stay bars, sorted by date. Identifiers derive from the merged
// interval itself, so re-runs on an unchanged source stay stable.
func buildMergedStays(records []model.EventRecord, policy sanitize.Policy, loc *time.Location, now time.Time, horizonDays int) []model.AnonymizedEvent {
	stays := sanitize.MergeStays(records, loc)
	events := make([]model.AnonymizedEvent, 0, len(stays))

	for _, stay := range stays {
		timing := sanitize.Timing{Start: stay.Start, End: stay.End, AllDay: true}
		if !sanitize.Retain(timing, "", now, horizonDays) {
			continue
		}
		synthetic := model.EventRecord{Start: stay.Start, End: stay.End, AllDay: true}
		events = append(events, model.AnonymizedEvent{
			UID:         sanitize.DeriveUID(synthetic),
			Start:       stay.Start,
			End:         stay.End,
			AllDay:      true,
			Summary:     policy.Summary,
			Description: policy.Description,
			DTStamp:     stay.Start,
		})
	}

	return events
}
