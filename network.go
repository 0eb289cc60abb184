package sim

import (
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"
)

// Callbacks are the game-provided hooks the network driver calls into
// (spec 4.11/6). Send* fields model the transport's outbound surface;
// the driver never performs I/O itself, only decides what to send and
// when.
type Callbacks struct {
	OnRoomCreate          func(w *World)
	OnConnect             func(w *World, clientID string)
	OnDisconnect          func(w *World, clientID string)
	OnSnapshot            func(w *World) // late-joiner-only, single invocation
	OnBeforeResyncSnapshot func(w *World) // "wake any dormant physics bodies" hook

	Send              func(data []byte)
	SendSnapshot      func(data []byte, hash uint32, seq, frame int64)
	SendStateHash     func(frame int64, hash uint32)
	SendPartitionData func(frame int64, partitionID int, data []byte)
	RequestResync     func()
	LeaveRoom         func()
}

// NetworkDriver implements spec 4.11's authority election, join/catchup,
// steady-state delivery, majority-hash desync detection, and resync flow
// on top of World/Snapshot/Delta/Partition. It holds no transport
// connection itself — Callbacks is the seam a host wires to its actual
// network layer, matching the teacher's coprocessor_manager.go pattern of
// a driver that owns scheduling/bookkeeping while deferring I/O to
// injected callbacks.
type NetworkDriver struct {
	World      *World
	Components *ComponentRegistry
	Rollback   *RollbackBuffer
	Callbacks  Callbacks
	cfg        SimulationConfig
	log        zerolog.Logger

	selfClientID   string
	serverFPS      int
	activeClients  []string // sorted, unique
	authority      string
	reliability    map[string]int

	prevSnapshot *Snapshot
	componentOrder []string
	snapshotSeq    int64 // monotonic serial of the last input folded into the snapshot (spec 9 open-question resolution)

	hashHistory      map[int64]uint32
	hashHistoryOrder []int64

	desynced             bool
	resyncInFlight        bool
	pendingSnapshotUpload bool

	clientsFromSnapshot map[string]bool // catchup filter set, cleared on resync (spec 4.11 resync step 4)
}

// NewNetworkDriver constructs a driver bound to w. componentOrder is the
// registry order used for every wire frame's column blocks (spec 6:
// "componentNames: [..]" in registry order).
func NewNetworkDriver(w *World, components *ComponentRegistry, componentOrder []string, cfg SimulationConfig, selfClientID string, cb Callbacks, log zerolog.Logger) *NetworkDriver {
	return &NetworkDriver{
		World:               w,
		Components:          components,
		Rollback:            NewRollbackBuffer(cfg.RollbackFrames),
		Callbacks:           cb,
		cfg:                 cfg,
		log:                 log,
		selfClientID:        selfClientID,
		reliability:         make(map[string]int),
		componentOrder:      componentOrder,
		hashHistory:         make(map[int64]uint32),
		clientsFromSnapshot: make(map[string]bool),
	}
}

// SetReliability updates the reliability scores the partition planner
// samples by (spec 6: "on_reliability_update(scores, version)").
func (nd *NetworkDriver) SetReliability(scores map[string]int) {
	for k, v := range scores {
		nd.reliability[k] = v
	}
}

func (nd *NetworkDriver) withRNGGuard(fn func()) {
	state := nd.World.RNG.SaveState()
	fn()
	nd.World.RNG.LoadState(state)
}

func (nd *NetworkDriver) isAuthority() bool { return nd.authority != "" && nd.authority == nd.selfClientID }

func (nd *NetworkDriver) addActiveClient(id string) {
	pos := sort.SearchStrings(nd.activeClients, id)
	if pos < len(nd.activeClients) && nd.activeClients[pos] == id {
		return
	}
	nd.activeClients = append(nd.activeClients, "")
	copy(nd.activeClients[pos+1:], nd.activeClients[pos:])
	nd.activeClients[pos] = id
}

func (nd *NetworkDriver) removeActiveClient(id string) {
	pos := sort.SearchStrings(nd.activeClients, id)
	if pos < len(nd.activeClients) && nd.activeClients[pos] == id {
		nd.activeClients = append(nd.activeClients[:pos], nd.activeClients[pos+1:]...)
	}
}

func (nd *NetworkDriver) migrateAuthority() {
	if len(nd.activeClients) == 0 {
		nd.authority = ""
		return
	}
	nd.authority = nd.activeClients[0] // smallest-lexicographic active client (spec 4.11)
}

func (nd *NetworkDriver) trackSeq(inputs []*Input) {
	for _, in := range inputs {
		if in.Seq > nd.snapshotSeq {
			nd.snapshotSeq = in.Seq
		}
	}
}

// splitInputs categorizes inputs by data.type (spec 4.11): join/reconnect
// and leave/disconnect/resync_request are handled here as protocol-level
// side effects; everything else is returned for World.Tick to apply as
// gameplay input.
func (nd *NetworkDriver) splitInputs(inputs []*Input) []*Input {
	var regular []*Input
	for _, in := range inputs {
		switch in.Type() {
		case "join", "reconnect":
			nd.handleJoin(in)
		case "leave", "disconnect":
			nd.handleLeave(in)
		case "resync_request":
			nd.handleResyncRequest()
		default:
			regular = append(regular, in)
		}
	}
	nd.trackSeq(inputs)
	return regular
}

func (nd *NetworkDriver) handleJoin(in *Input) {
	nd.addActiveClient(in.ClientID)
	if nd.authority == "" {
		nd.authority = in.ClientID
	}
	if nd.Callbacks.OnConnect != nil {
		nd.withRNGGuard(func() { nd.Callbacks.OnConnect(nd.World, in.ClientID) })
	}
}

func (nd *NetworkDriver) handleLeave(in *Input) {
	nd.removeActiveClient(in.ClientID)
	if nd.authority == in.ClientID {
		nd.migrateAuthority()
	}
	if nd.Callbacks.OnDisconnect != nil {
		nd.withRNGGuard(func() { nd.Callbacks.OnDisconnect(nd.World, in.ClientID) })
	}
	if nd.isAuthority() {
		nd.pendingSnapshotUpload = true
	}
}

func (nd *NetworkDriver) handleResyncRequest() {
	if nd.isAuthority() {
		nd.pendingSnapshotUpload = true
	}
}

func (nd *NetworkDriver) recordHash(frame int64, hash uint32) {
	nd.hashHistory[frame] = hash
	nd.hashHistoryOrder = append(nd.hashHistoryOrder, frame)
	for len(nd.hashHistoryOrder) > nd.cfg.HashHistoryWindow {
		oldest := nd.hashHistoryOrder[0]
		nd.hashHistoryOrder = nd.hashHistoryOrder[1:]
		delete(nd.hashHistory, oldest)
	}
}

// OnConnect is the single entry point for both join flows (spec 6:
// on_connect(snapshot_bytes|null, pending_inputs[], server_frame,
// server_fps, assigned_client_id)); a nil snapshot means this is the
// room's first joiner.
func (nd *NetworkDriver) OnConnect(snapshotBytes []byte, expectedHash *uint32, pendingInputs []*Input, serverFrame int64, serverFPS int, assignedClientID string) error {
	nd.selfClientID = assignedClientID
	nd.serverFPS = serverFPS
	if snapshotBytes == nil {
		return nd.joinAsFirst(serverFrame, pendingInputs)
	}
	return nd.joinAsLateJoiner(snapshotBytes, expectedHash, pendingInputs, serverFrame)
}

func (nd *NetworkDriver) joinAsFirst(frame int64, initialInputs []*Input) error {
	if nd.Callbacks.OnRoomCreate != nil {
		nd.Callbacks.OnRoomCreate(nd.World)
	}
	nd.splitInputs(initialInputs) // join/leave/resync side effects only; tick itself takes no inputs (spec 4.11)

	if err := nd.World.Tick(frame, nil); err != nil {
		return err
	}
	hash := nd.World.ComputeStateHash()
	nd.recordHash(frame, hash)

	snap := EncodeSnapshot(nd.World, frame, nd.snapshotSeq, true)
	nd.prevSnapshot = snap
	nd.Rollback.Save(snap)

	data, err := EncodeBinary(snap, nd.componentOrder)
	if err != nil {
		return err
	}
	if nd.Callbacks.SendSnapshot != nil {
		nd.Callbacks.SendSnapshot(data, hash, nd.snapshotSeq, frame)
	}
	return nil
}

func (nd *NetworkDriver) joinAsLateJoiner(snapshotBytes []byte, expectedHash *uint32, pendingInputs []*Input, serverFrame int64) error {
	snap, componentOrder, err := DecodeBinary(snapshotBytes, nd.Components, nd.log)
	if err != nil {
		return err
	}
	nd.componentOrder = componentOrder

	// Step 1: register clients already reflected in the snapshot's entities
	// without re-invoking on_connect (their state is already present).
	for _, in := range pendingInputs {
		if (in.Type() == "join" || in.Type() == "reconnect") && in.Seq <= snap.Seq {
			nd.addActiveClient(in.ClientID)
			if nd.authority == "" {
				nd.authority = in.ClientID
			}
		}
	}

	// Step 2.
	if err := LoadSparseSnapshot(nd.World, snap); err != nil {
		return err
	}
	nd.World.currentFrame = snap.Frame
	nd.snapshotSeq = snap.Seq
	nd.prevSnapshot = snap
	nd.Rollback.Save(snap)
	for _, e := range snap.Entities {
		if e.ClientID != "" {
			nd.clientsFromSnapshot[e.ClientID] = true
		}
	}

	// Step 3.
	hash := nd.World.ComputeStateHash()
	if expectedHash != nil && hash != *expectedHash {
		logHashMismatch(nd.log, snap.Frame, *expectedHash, hash)
	}
	nd.recordHash(snap.Frame, hash)

	// Step 4.
	if nd.Callbacks.OnSnapshot != nil {
		nd.withRNGGuard(func() { nd.Callbacks.OnSnapshot(nd.World) })
	}

	// Step 5.
	var toReplay []*Input
	for _, in := range pendingInputs {
		switch in.Type() {
		case "leave", "disconnect":
			nd.handleLeave(in)
		case "join", "reconnect":
			if in.Seq <= snap.Seq {
				logStaleInput(nd.log, in.ClientID, in.Seq, snap.Seq)
				continue
			}
			nd.handleJoin(in)
		case "resync_request":
			nd.handleResyncRequest()
		default:
			toReplay = append(toReplay, in)
		}
	}
	nd.trackSeq(pendingInputs)

	// Step 6.
	start := snap.Frame
	if snap.PostTick {
		start++
	}
	end := serverFrame
	if end-start > int64(nd.cfg.CatchupCap) {
		if nd.Callbacks.RequestResync != nil {
			nd.Callbacks.RequestResync()
		}
		return nil
	}

	// Step 7: per-frame catchup.
	byFrame := make(map[int64][]*Input)
	for _, in := range toReplay {
		byFrame[in.Frame] = append(byFrame[in.Frame], in)
	}
	for f := start; f <= end; f++ {
		frameInputs := byFrame[f]
		sort.Slice(frameInputs, func(i, j int) bool { return frameInputs[i].Seq < frameInputs[j].Seq })
		if err := nd.World.Tick(f, frameInputs); err != nil {
			return err
		}
		nd.recordHash(f, nd.World.ComputeStateHash())
	}

	// Step 8.
	nd.prevSnapshot = EncodeSnapshot(nd.World, end, nd.snapshotSeq, false)
	nd.Rollback.Save(nd.prevSnapshot)
	return nil
}

// SteadyTick applies one server-delivered tick message (spec 4.11
// "Steady state"): sorts inputs by seq, ticks, emits a state-hash
// message and this client's assigned delta partitions, and performs any
// deferred authority snapshot upload.
func (nd *NetworkDriver) SteadyTick(frame int64, inputs []*Input, majorityHashForPriorFrame *uint32) error {
	if majorityHashForPriorFrame != nil {
		nd.CheckMajorityHash(frame-1, *majorityHashForPriorFrame)
	}

	regular := nd.splitInputs(inputs)
	sort.Slice(regular, func(i, j int) bool { return regular[i].Seq < regular[j].Seq })

	if err := nd.World.Tick(frame, regular); err != nil {
		return err
	}
	hash := nd.World.ComputeStateHash()
	nd.recordHash(frame, hash)
	if nd.Callbacks.SendStateHash != nil {
		nd.Callbacks.SendStateHash(frame, hash)
	}

	curr := EncodeSnapshot(nd.World, frame, nd.snapshotSeq, true)
	nd.Rollback.Save(curr)
	if nd.prevSnapshot != nil {
		nd.emitAssignedPartitions(frame, nd.prevSnapshot, curr, hash)
	}
	nd.prevSnapshot = curr

	if nd.pendingSnapshotUpload {
		nd.uploadSnapshot(frame, hash)
		nd.pendingSnapshotUpload = false
	}
	return nil
}

func (nd *NetworkDriver) emitAssignedPartitions(frame int64, prev, curr *Snapshot, resultHash uint32) {
	delta := ComputeDelta(prev, curr, 0, resultHash)
	numParts := NumPartitions(len(curr.Entities), len(nd.activeClients))
	assignment := PlanPartitionSenders(nd.activeClients, nd.reliability, frame, numParts, nd.cfg.SendersPerPartition)
	parts := PartitionDelta(delta, numParts)
	mine := ClientPartitions(assignment, nd.selfClientID)
	for _, p := range mine {
		if p < 0 || p >= len(parts) {
			continue
		}
		data, err := json.Marshal(parts[p])
		if err != nil {
			continue
		}
		if nd.Callbacks.SendPartitionData != nil {
			nd.Callbacks.SendPartitionData(frame, p, data)
		}
	}
}

// CheckMajorityHash compares the server-reported majority hash for frame
// against this client's cached local hash (spec 4.11 "Majority-hash
// check").
func (nd *NetworkDriver) CheckMajorityHash(frame int64, majority uint32) {
	local, ok := nd.hashHistory[frame]
	if !ok {
		return
	}
	if local == majority {
		if nd.desynced && !nd.resyncInFlight {
			nd.desynced = false
			logRecovered(nd.log, frame)
		}
		return
	}
	wasDesynced := nd.desynced
	nd.desynced = true
	if !nd.resyncInFlight {
		nd.resyncInFlight = true
		if !wasDesynced {
			logDesync(nd.log, frame, local, majority)
		}
		if nd.Callbacks.RequestResync != nil {
			nd.Callbacks.RequestResync()
		}
	}
}

// ApplyPartitionShards reassembles one frame's delta from received
// partition shards and applies it to the world (the steady-state
// counterpart of a client consuming peers' send_partition_data calls).
func (nd *NetworkDriver) ApplyPartitionShards(shards [][]byte) error {
	parts := make([]*Delta, 0, len(shards))
	for _, raw := range shards {
		var d Delta
		if err := json.Unmarshal(raw, &d); err != nil {
			return newErr(KindSnapshotDecode, "ApplyPartitionShards", err)
		}
		parts = append(parts, &d)
	}
	delta, err := AssembleDelta(parts)
	if err != nil {
		return newErr(KindSnapshotDecode, "ApplyPartitionShards", err)
	}
	return ApplyDelta(nd.World, delta)
}

// uploadSnapshot performs the authority's deferred-to-post-tick snapshot
// broadcast (spec 4.11: "always deferred to after the current tick
// completes").
func (nd *NetworkDriver) uploadSnapshot(frame int64, hash uint32) {
	if nd.Callbacks.OnBeforeResyncSnapshot != nil {
		nd.Callbacks.OnBeforeResyncSnapshot(nd.World)
	}
	snap := EncodeSnapshot(nd.World, frame, nd.snapshotSeq, true)
	data, err := EncodeBinary(snap, nd.componentOrder)
	if err != nil {
		return
	}
	if nd.Callbacks.SendSnapshot != nil {
		nd.Callbacks.SendSnapshot(data, hash, nd.snapshotSeq, frame)
	}
}

// OnResyncSnapshot handles an authority-pushed full resync (spec 4.11
// "Resync"): decodes (tolerating the legacy JSON-of-binary-as-object
// shape), logs a field-by-field diff, loads, and resets desync/catchup
// bookkeeping.
func (nd *NetworkDriver) OnResyncSnapshot(data []byte, frame int64) error {
	raw, err := NormalizeLegacyJSON(data)
	if err != nil {
		return err
	}
	snap, componentOrder, err := DecodeBinary(raw, nd.Components, nd.log)
	if err != nil {
		return err
	}
	nd.componentOrder = componentOrder

	nd.logFieldDiffs(snap)

	if err := LoadSparseSnapshot(nd.World, snap); err != nil {
		return err
	}
	nd.World.currentFrame = frame
	nd.snapshotSeq = snap.Seq
	nd.desynced = false
	nd.resyncInFlight = false

	nd.hashHistory = map[int64]uint32{frame: nd.World.ComputeStateHash()}
	nd.hashHistoryOrder = []int64{frame}

	nd.clientsFromSnapshot = make(map[string]bool)
	for _, e := range snap.Entities {
		if e.ClientID != "" {
			nd.clientsFromSnapshot[e.ClientID] = true
		}
	}

	nd.prevSnapshot = snap
	nd.Rollback.Save(snap)
	return nil
}

// logFieldDiffs reports, per entity present in both the live world and
// the incoming resync snapshot, every field whose value changed (spec
// 4.11 resync step 2).
func (nd *NetworkDriver) logFieldDiffs(snap *Snapshot) {
	for i, em := range snap.Entities {
		e, ok := nd.World.Entity(em.ID)
		if !ok {
			continue
		}
		def, _ := nd.World.EntityDefs.Get(e.TypeName)
		owner := ""
		if cid, ok := clientIDFor(nd.World, em.ID); ok {
			owner = cid
		}
		schema := snap.Schemas[em.TypeIdx]
		for fi, fr := range schema.Fields {
			if fi >= len(snap.Values[i]) {
				break
			}
			storage, ok := nd.World.storages[fr.Component]
			if !ok {
				continue
			}
			if def != nil && !def.FieldIsSynced(fr.Component, fr.Field) {
				continue
			}
			slot := nd.World.slot(em.ID)
			was, err := storage.Get(slot, fr.Field)
			if err != nil {
				continue
			}
			now := snap.Values[i][fi]
			if was.rawBits() == now.rawBits() {
				continue
			}
			logFieldDiff(nd.log, em.ID, fr.Component, fr.Field, owner, int32(was.rawBits()), int32(now.rawBits()))
		}
	}
}
