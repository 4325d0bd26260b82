package testbed

import (
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
)

const (
	gridSize    = 10
	gridSpacing = 2.5
	spinSpeed   = 45.0 // degrees per second
)

type gameState struct {
	meshPath    string
	texturePath string
	instances   []ecs.Entity
	spin        []float32
}

// NewTestGame spawns a grid of textured cubes that spin in place. E adds a row,
// Q removes the last instance.
func NewTestGame(assetsRoot string) *engine.Game {
	state := &gameState{
		meshPath:    filepath.Join(assetsRoot, "models", "cube.obj"),
		texturePath: filepath.Join(assetsRoot, "textures", "checker.png"),
	}
	return &engine.Game{
		Name:  "testbed",
		State: state,
		FnInitialize: func(e *engine.Engine) error {
			return state.initialize(e)
		},
		FnUpdate: func(e *engine.Engine, deltaTime float64) error {
			return state.update(e, deltaTime)
		},
		FnShutdown: func(e *engine.Engine) error {
			core.LogInfo("testbed shutting down with %d instances", len(state.instances))
			return nil
		},
	}
}

func (s *gameState) initialize(e *engine.Engine) error {
	if err := e.PreloadTextures([]string{s.texturePath}); err != nil {
		return err
	}
	for row := 0; row < gridSize; row++ {
		if err := s.spawnRow(e, row); err != nil {
			return err
		}
	}
	core.LogInfo("testbed spawned %d instances", len(s.instances))
	return nil
}

func (s *gameState) spawnRow(e *engine.Engine, row int) error {
	for col := 0; col < gridSize; col++ {
		entity, err := e.Bindless().CreateInstance(s.meshPath, s.texturePath)
		if err != nil {
			return err
		}
		tr, _ := e.Registry().Transform(entity)
		tr.Position = mgl32.Vec3{float32(row) * gridSpacing, float32(col) * gridSpacing, 0}
		tr.Scale = mgl32.Vec3{1.5, 1.5, 1.5}
		if err := e.Bindless().FlagDirty(entity); err != nil {
			return err
		}
		s.instances = append(s.instances, entity)
		s.spin = append(s.spin, spinSpeed*float32(1+(row+col)%3))
	}
	return nil
}

func (s *gameState) update(e *engine.Engine, deltaTime float64) error {
	input := e.Input()
	if input.KeyPressed(core.KEY_E) {
		if err := s.spawnRow(e, len(s.instances)/gridSize); err != nil {
			core.LogWarn("failed to spawn row: %s", err)
		}
	}
	if input.KeyPressed(core.KEY_Q) && len(s.instances) > 0 {
		last := len(s.instances) - 1
		if err := e.Bindless().DestroyInstance(s.instances[last]); err != nil {
			return err
		}
		s.instances = s.instances[:last]
		s.spin = s.spin[:last]
	}

	for i, entity := range s.instances {
		tr, ok := e.Registry().Transform(entity)
		if !ok {
			continue
		}
		tr.Rotate(mgl32.Vec3{0, 0, s.spin[i] * float32(deltaTime)})
		if err := e.Bindless().FlagDirty(entity); err != nil {
			return err
		}
	}
	return nil
}
