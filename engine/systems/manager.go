package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// System is anything the manager owns and shuts down.
type System interface {
	Name() string
	Shutdown() error
}

// Updater is implemented by systems that advance once per frame.
type Updater interface {
	Update(deltaTime float64) error
}

// Renderer is implemented by systems that record into the frame's command
// buffer while the main render pass is active.
type Renderer interface {
	Render(ctx *renderer.FrameContext) error
}

type SystemManager struct {
	systems []System
	byName  map[string]System
}

func NewSystemManager() *SystemManager {
	return &SystemManager{
		byName: make(map[string]System),
	}
}

// Register appends s. Update and Render run in registration order,
// Shutdown in reverse.
func (sm *SystemManager) Register(s System) error {
	if _, ok := sm.byName[s.Name()]; ok {
		return fmt.Errorf("system %s already registered", s.Name())
	}
	sm.systems = append(sm.systems, s)
	sm.byName[s.Name()] = s
	_, updates := s.(Updater)
	_, renders := s.(Renderer)
	core.LogDebug("registered system %s (update: %t, render: %t)", s.Name(), updates, renders)
	return nil
}

func (sm *SystemManager) Get(name string) (System, bool) {
	s, ok := sm.byName[name]
	return s, ok
}

func (sm *SystemManager) Update(deltaTime float64) error {
	for _, s := range sm.systems {
		if u, ok := s.(Updater); ok {
			if err := u.Update(deltaTime); err != nil {
				return fmt.Errorf("system %s update: %w", s.Name(), err)
			}
		}
	}
	return nil
}

// Render has the renderer.RenderFunc signature so the frontend can call it
// directly.
func (sm *SystemManager) Render(ctx *renderer.FrameContext) error {
	for _, s := range sm.systems {
		if r, ok := s.(Renderer); ok {
			if err := r.Render(ctx); err != nil {
				return fmt.Errorf("system %s render: %w", s.Name(), err)
			}
		}
	}
	return nil
}

// Shutdown stops every system, last registered first. All systems are shut
// down even when some fail.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	for i := len(sm.systems) - 1; i >= 0; i-- {
		s := sm.systems[i]
		if err := s.Shutdown(); err != nil {
			core.LogError("failed to shut down system %s: %s", s.Name(), err)
			errs = append(errs, err)
		}
	}
	sm.systems = nil
	sm.byName = make(map[string]System)
	return errors.Join(errs...)
}
