package ecs

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
)

// Entity packs a slot index in the low 32 bits and the slot generation in
// the high 32 bits. The zero value is never a live entity.
type Entity uint64

const NullEntity Entity = 0

func newEntity(index, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

func (e Entity) Index() uint32 {
	return uint32(e)
}

func (e Entity) Generation() uint32 {
	return uint32(e >> 32)
}

func (e Entity) String() string {
	return fmt.Sprintf("entity(%d:%d)", e.Index(), e.Generation())
}

// Registry owns every entity and stores components as parallel slices
// indexed by the entity slot.
type Registry struct {
	generations []uint32
	alive       []bool
	masks       []ComponentMask
	names       []string
	freeSlots   []uint32

	transforms []Transform
	instances  []BindlessInstance

	count int
}

func NewRegistry() *Registry {
	return &Registry{}
}

// CreateEntity returns a fresh handle. Slots of destroyed entities are
// reused with a bumped generation.
func (r *Registry) CreateEntity(name string) Entity {
	var index uint32
	if n := len(r.freeSlots); n > 0 {
		index = r.freeSlots[n-1]
		r.freeSlots = r.freeSlots[:n-1]
	} else {
		index = uint32(len(r.generations))
		r.generations = append(r.generations, 0)
		r.alive = append(r.alive, false)
		r.masks = append(r.masks, 0)
		r.names = append(r.names, "")
		r.transforms = append(r.transforms, Transform{})
		r.instances = append(r.instances, BindlessInstance{})
	}
	r.generations[index]++
	r.alive[index] = true
	r.masks[index] = 0
	r.names[index] = name
	r.count++
	return newEntity(index, r.generations[index])
}

// DestroyEntity drops the entity and all its components. The handle and
// any copy of it become stale.
func (r *Registry) DestroyEntity(e Entity) error {
	if !r.Valid(e) {
		return fmt.Errorf("destroy %s: %w", e, core.ErrStaleEntity)
	}
	i := e.Index()
	r.alive[i] = false
	r.masks[i] = 0
	r.names[i] = ""
	r.transforms[i] = Transform{}
	r.instances[i] = BindlessInstance{}
	r.freeSlots = append(r.freeSlots, i)
	r.count--
	return nil
}

// Valid reports whether e refers to a live entity.
func (r *Registry) Valid(e Entity) bool {
	i := e.Index()
	if e == NullEntity || int(i) >= len(r.generations) {
		return false
	}
	return r.alive[i] && r.generations[i] == e.Generation()
}

func (r *Registry) Name(e Entity) string {
	if !r.Valid(e) {
		return ""
	}
	return r.names[e.Index()]
}

func (r *Registry) Count() int {
	return r.count
}

func (r *Registry) Has(e Entity, kind ComponentKind) bool {
	return r.Valid(e) && r.masks[e.Index()].Has(kind)
}

func (r *Registry) AddTransform(e Entity, t Transform) error {
	if !r.Valid(e) {
		return fmt.Errorf("add transform to %s: %w", e, core.ErrStaleEntity)
	}
	r.transforms[e.Index()] = t
	r.masks[e.Index()] |= ComponentTransform.Mask()
	return nil
}

// Transform returns a pointer into the registry storage, valid until the
// next CreateEntity call.
func (r *Registry) Transform(e Entity) (*Transform, bool) {
	if !r.Has(e, ComponentTransform) {
		return nil, false
	}
	return &r.transforms[e.Index()], true
}

func (r *Registry) AddBindlessInstance(e Entity, bi BindlessInstance) error {
	if !r.Valid(e) {
		return fmt.Errorf("add bindless instance to %s: %w", e, core.ErrStaleEntity)
	}
	r.instances[e.Index()] = bi
	r.masks[e.Index()] |= ComponentBindlessInstance.Mask()
	return nil
}

// BindlessInstance returns a pointer into the registry storage, valid until
// the next CreateEntity call.
func (r *Registry) BindlessInstance(e Entity) (*BindlessInstance, bool) {
	if !r.Has(e, ComponentBindlessInstance) {
		return nil, false
	}
	return &r.instances[e.Index()], true
}

func (r *Registry) RemoveBindlessInstance(e Entity) {
	if r.Valid(e) {
		r.masks[e.Index()] &^= ComponentBindlessInstance.Mask()
		r.instances[e.Index()] = BindlessInstance{}
	}
}

// Each calls fn for every live entity that carries all the given components.
func (r *Registry) Each(fn func(e Entity), kinds ...ComponentKind) {
	var want ComponentMask
	for _, k := range kinds {
		want |= k.Mask()
	}
	for i := range r.generations {
		if r.alive[i] && r.masks[i]&want == want {
			fn(newEntity(uint32(i), r.generations[i]))
		}
	}
}
