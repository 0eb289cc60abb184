// Command lockstepdemo runs spec.md's "Scenario A — two-client convergence"
// end to end: two independently constructed worlds, fed the same ordered
// input stream, must agree on every field and on the state hash at frame
// 20. This is the small driver binary modeled on the teacher's
// cmd/ie32to64 (a standalone binary wrapping the core library for a
// single worked example), not a general CLI.
package main

import (
	"fmt"
	"os"

	sim "github.com/moddio/modu-engine-core"
)

// clientVelocity is one client's last-known (dx, dy) contribution to the
// shared dot's velocity. Scenario A has two independent clients driving a
// single shared entity — clientA's axis must not be clobbered by clientB's
// next message, so each client's contribution is latched separately and
// the entity's velocity is their sum, recomputed whenever any client's
// contribution changes.
type clientVelocity struct {
	dx, dy sim.FP
}

// newPeer builds one independent lockstep peer: a "dot" entity type with a
// single synced "pos" component, plus a "vel" component that a postPhysics
// system latches from every client's per-tick input (via the InputRegistry,
// not a single owned clientId) and an update system integrates into
// position one tick later — matching spec.md Scenario A's worked
// arithmetic (dx sent at frame F first moves position at frame F+1).
func newPeer(seed uint32) (*sim.World, sim.EntityID) {
	components := sim.NewComponentRegistry(sim.NewDiscardLogger())
	components.Register("pos", []sim.FieldSchema{
		{Name: "x", Repr: sim.FieldI32},
		{Name: "y", Repr: sim.FieldI32},
	}, true)
	components.Register("vel", []sim.FieldSchema{
		{Name: "dx", Repr: sim.FieldI32},
		{Name: "dy", Repr: sim.FieldI32},
	}, true)

	defs := sim.NewEntityDefinitionRegistry()
	defs.Register(&sim.EntityDefinition{
		Name:       "dot",
		Components: []string{"pos", "vel"},
	})

	cfg := sim.DefaultSimulationConfig()
	w := sim.NewWorld(cfg, components, defs, false, seed, sim.NewDiscardLogger())

	id, err := w.Spawn("dot", false, nil)
	if err != nil {
		panic(err)
	}

	w.Scheduler.Add(sim.PhaseUpdate, "integrate", 0, func(world *sim.World) error {
		pos, err := world.Accessor(id, "pos")
		if err != nil {
			return err
		}
		vel, err := world.Accessor(id, "vel")
		if err != nil {
			return err
		}
		pos.SetFP("x", pos.FP("x")+vel.FP("dx"))
		pos.SetFP("y", pos.FP("y")+vel.FP("dy"))
		return nil
	})

	latched := make(map[string]clientVelocity)
	w.Scheduler.Add(sim.PhasePostPhysics, "latchInput", 0, func(world *sim.World) error {
		for _, cid := range world.Inputs.ClientIDs() {
			in, ok := world.Inputs.Get(cid)
			if !ok || in.Type() != "move" {
				continue
			}
			dx, _ := in.Data["dx"].(float64)
			dy, _ := in.Data["dy"].(float64)
			latched[cid] = clientVelocity{dx: sim.ToFixed(dx), dy: sim.ToFixed(dy)}
		}

		var totalDx, totalDy sim.FP
		for _, cv := range latched {
			totalDx += cv.dx
			totalDy += cv.dy
		}
		vel, err := world.Accessor(id, "vel")
		if err != nil {
			return err
		}
		vel.SetFP("dx", totalDx)
		vel.SetFP("dy", totalDy)
		return nil
	})

	return w, id
}

func moveInput(seq, frame int64, clientID string, dx, dy float64) *sim.Input {
	return &sim.Input{
		Seq:      seq,
		Frame:    frame,
		ClientID: clientID,
		Data:     map[string]sim.Value{"type": "move", "dx": dx, "dy": dy},
	}
}

func main() {
	const finalFrame = int64(20)

	peerA, dotA := newPeer(1)
	peerB, dotB := newPeer(1)

	// Both peers see the identical ordered input stream: clientA's move at
	// frame 5, clientB's at frame 7. Neither client owns the shared dot —
	// both contribute to its single velocity via the InputRegistry.
	inputsByFrame := map[int64][]*sim.Input{
		5: {moveInput(1, 5, "clientA", 1, 0)},
		7: {moveInput(2, 7, "clientB", 0, 2)},
	}

	for frame := int64(0); frame <= finalFrame; frame++ {
		in := inputsByFrame[frame]
		if err := peerA.Tick(frame, in); err != nil {
			fmt.Fprintf(os.Stderr, "peerA tick %d: %v\n", frame, err)
			os.Exit(1)
		}
		if err := peerB.Tick(frame, in); err != nil {
			fmt.Fprintf(os.Stderr, "peerB tick %d: %v\n", frame, err)
			os.Exit(1)
		}
	}

	hashA := peerA.ComputeStateHash()
	hashB := peerB.ComputeStateHash()

	accA, _ := peerA.Accessor(dotA, "pos")
	accB, _ := peerB.Accessor(dotB, "pos")

	fmt.Printf("frame %d: peerA hash=%08x pos=(%.1f,%.1f)\n", finalFrame, hashA, accA.Float("x"), accA.Float("y"))
	fmt.Printf("frame %d: peerB hash=%08x pos=(%.1f,%.1f)\n", finalFrame, hashB, accB.Float("x"), accB.Float("y"))

	if hashA != hashB {
		fmt.Fprintln(os.Stderr, "DIVERGED: peer hashes do not match")
		os.Exit(1)
	}
	if accA.Float("x") != 15 || accA.Float("y") != 26 {
		fmt.Fprintf(os.Stderr, "unexpected position: got (%.1f,%.1f), want (15,26)\n", accA.Float("x"), accA.Float("y"))
		os.Exit(1)
	}
	fmt.Println("CONVERGED")
}
