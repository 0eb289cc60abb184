// Package sim is the deterministic lockstep simulation core: fixed-point
// math, a generational-ID entity/component store, a phased scheduler,
// snapshot/rollback codecs, and a partitioned delta-sync network driver.
//
// Everything in this package must produce byte-identical output across
// independent peers given the same ordered input stream. Rendering, asset
// loading, input device integration, physics contact solving, matchmaking,
// transport reliability, and platform timing are not this package's job —
// it exposes a tick function, a query interface, a phased system hook, and
// snapshot encode/decode for those external collaborators to build on.
package sim
