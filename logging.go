package sim

import (
	"io"

	"github.com/rs/zerolog"
)

// NewDiscardLogger returns a logger that drops everything, so embedding a
// Simulation costs nothing unless a host opts into logging.
func NewDiscardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// logSnapshotDecodeIssue logs a non-fatal decode failure (spec 7: "log
// loudly; skip the offending entity; continue").
func logSnapshotDecodeIssue(log zerolog.Logger, eid EntityID, typ string, err error) {
	log.Warn().
		Uint32("entityId", uint32(eid)).
		Str("type", typ).
		Err(err).
		Msg("snapshot decode: skipping entity")
}

// logHashMismatch logs a hash mismatch on snapshot load (spec 7: "log;
// continue; authority majority-hash path will trigger recovery").
func logHashMismatch(log zerolog.Logger, frame int64, expected, got uint32) {
	log.Warn().
		Int64("frame", frame).
		Uint32("expectedHash", expected).
		Uint32("gotHash", got).
		Msg("state hash mismatch on snapshot load")
}

// logDesync logs a majority-hash disagreement (spec 7: "non-fatal; flip
// desync flag; issue at most one resync_request").
func logDesync(log zerolog.Logger, frame int64, local, majority uint32) {
	log.Error().
		Int64("frame", frame).
		Uint32("localHash", local).
		Uint32("majorityHash", majority).
		Msg("desync detected: requesting resync")
}

// logRecovered logs a return to consensus after a prior desync.
func logRecovered(log zerolog.Logger, frame int64) {
	log.Info().Int64("frame", frame).Msg("desync recovered")
}

// logStaleInput logs a discarded stale join/input during catchup (spec 7:
// "warn, discard, continue").
func logStaleInput(log zerolog.Logger, clientID string, seq, snapshotSeq int64) {
	log.Warn().
		Str("clientId", clientID).
		Int64("seq", seq).
		Int64("snapshotSeq", snapshotSeq).
		Msg("discarding stale join/input")
}

// logFieldDiff logs one field's delta during a resync diff report (spec
// 4.11 resync step 2: "log a field-by-field diff ... annotated with delta
// for numeric fields").
func logFieldDiff(log zerolog.Logger, eid EntityID, component, field string, owner string, was, now int32) {
	ev := log.Warn().
		Uint32("entityId", uint32(eid)).
		Str("component", component).
		Str("field", field).
		Int32("was", was).
		Int32("now", now).
		Int32("delta", now-was)
	if owner != "" {
		ev = ev.Str("ownerClientId", owner)
	}
	ev.Msg("resync field diff")
}

// logNonDeterministicField logs (but never forbids, per spec 4.3) an f32
// field attached to a sync component.
func logNonDeterministicField(log zerolog.Logger, component, field string) {
	log.Warn().
		Str("component", component).
		Str("field", field).
		Msg("f32 field on a sync component: hash will include non-deterministic bits")
}
