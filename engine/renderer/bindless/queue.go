package bindless

import (
	"github.com/spaghettifunk/anima/engine/containers"
	"github.com/spaghettifunk/anima/engine/ecs"
)

type updateKind uint8

const (
	// rewrite the instance record of an entity from its components
	updateInstance updateKind = iota
	// rewrite one lookup entry of a batch from the CPU mirror
	updateLookup
	// rewrite the draw command of a batch
	updateDrawCommand
	// push the whole sampler array to the frame's descriptor set
	updateTextures
)

type update struct {
	kind   updateKind
	entity ecs.Entity
	batch  int
	slot   uint32
}

// frameQueue holds the writes one frame in flight still has to apply to its
// own table copies. It is drained at the start of that frame's render.
type frameQueue struct {
	ops             *containers.RingQueue[update]
	texturesPending bool
}

func newFrameQueue() *frameQueue {
	return &frameQueue{ops: containers.NewRingQueue[update](64)}
}

func (q *frameQueue) push(u update) {
	if u.kind == updateTextures {
		if q.texturesPending {
			return
		}
		q.texturesPending = true
	}
	q.ops.Enqueue(u)
}

func (q *frameQueue) pop() (update, bool) {
	u, err := q.ops.Dequeue()
	if err != nil {
		return update{}, false
	}
	if u.kind == updateTextures {
		q.texturesPending = false
	}
	return u, true
}

func (q *frameQueue) Len() int {
	return q.ops.Len()
}
