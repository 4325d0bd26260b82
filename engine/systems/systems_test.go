package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

type fakeSystem struct {
	name        string
	log         *[]string
	shutdownErr error
}

func (f *fakeSystem) Name() string { return f.name }

func (f *fakeSystem) Shutdown() error {
	*f.log = append(*f.log, "shutdown:"+f.name)
	return f.shutdownErr
}

type updatingSystem struct{ fakeSystem }

func (u *updatingSystem) Update(float64) error {
	*u.log = append(*u.log, "update:"+u.name)
	return nil
}

type renderingSystem struct{ fakeSystem }

func (r *renderingSystem) Render(*renderer.FrameContext) error {
	*r.log = append(*r.log, "render:"+r.name)
	return nil
}

func TestSystemManagerDispatchesByCapability(t *testing.T) {
	var log []string
	sm := NewSystemManager()
	require.NoError(t, sm.Register(&updatingSystem{fakeSystem{name: "a", log: &log}}))
	require.NoError(t, sm.Register(&renderingSystem{fakeSystem{name: "b", log: &log}}))
	require.NoError(t, sm.Register(&fakeSystem{name: "c", log: &log}))
	assert.Error(t, sm.Register(&fakeSystem{name: "a", log: &log}))

	require.NoError(t, sm.Update(0.016))
	require.NoError(t, sm.Render(&renderer.FrameContext{}))
	require.NoError(t, sm.Shutdown())

	assert.Equal(t, []string{
		"update:a",
		"render:b",
		"shutdown:c",
		"shutdown:b",
		"shutdown:a",
	}, log)

	_, ok := sm.Get("a")
	assert.False(t, ok)
}

func TestSystemManagerShutdownContinuesOnError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	sm := NewSystemManager()
	require.NoError(t, sm.Register(&fakeSystem{name: "first", log: &log}))
	require.NoError(t, sm.Register(&fakeSystem{name: "second", log: &log, shutdownErr: boom}))

	err := sm.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"shutdown:second", "shutdown:first"}, log)
}

func TestJobSystemDeliversResultsOnUpdate(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)

	var ran atomic.Int32
	var completed []int
	var failed int
	for i := 0; i < 8; i++ {
		require.NoError(t, js.Submit(JobTask{
			Name: "square",
			Run: func() (interface{}, error) {
				ran.Add(1)
				if i == 3 {
					return nil, errors.New("unlucky")
				}
				return i * i, nil
			},
			OnComplete: func(result interface{}) { completed = append(completed, result.(int)) },
			OnFailure:  func(error) { failed++ },
		}))
	}

	require.NoError(t, js.Wait())
	assert.Equal(t, int32(8), ran.Load())
	assert.Len(t, completed, 7)
	assert.Equal(t, 1, failed)

	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(JobTask{Run: func() (interface{}, error) { return nil, nil }}), ErrJobSystemClosed)
}

func TestJobSystemSubmitRacesShutdown(t *testing.T) {
	for round := 0; round < 50; round++ {
		js, err := NewJobSystem(2, 0)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- js.Submit(JobTask{Run: func() (interface{}, error) { return nil, nil }})
			}()
		}
		require.NoError(t, js.Shutdown())
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, ErrJobSystemClosed)
			}
		}
	}
}

func TestCameraSystemFliesDefaultCamera(t *testing.T) {
	input := core.NewInputState()
	look := false
	cs, err := NewCameraSystem(core.DefaultConfig().Camera, input, func() bool { return look })
	require.NoError(t, err)

	cam := cs.GetDefault()
	start := cam.Position
	yaw := cam.Yaw()

	input.ProcessKey(core.KEY_SPACE, true)
	require.NoError(t, cs.Update(1))
	assert.InDelta(t, start.Z()+core.DefaultConfig().Camera.Speed, cam.Position.Z(), 1e-5)

	input.ProcessMouseMove(0, 0)
	input.Update()
	input.ProcessMouseMove(-10, 0)
	require.NoError(t, cs.Update(0))
	assert.Equal(t, yaw, cam.Yaw(), "look disabled")

	look = true
	require.NoError(t, cs.Update(0))
	assert.Greater(t, cam.Yaw(), yaw)

	_, err = NewCameraSystem(core.CameraConfig{ZNear: 1, ZFar: 1}, input, nil)
	assert.Error(t, err)
}

func TestCameraSystemScrollScalesSpeed(t *testing.T) {
	input := core.NewInputState()
	cfg := core.DefaultConfig().Camera
	cs, err := NewCameraSystem(cfg, input, nil)
	require.NoError(t, err)

	input.ProcessMouseWheel(2)
	require.NoError(t, cs.Update(0))
	assert.InDelta(t, cfg.Speed*1.21, cs.Speed(), 1e-5)

	input.Update()
	require.NoError(t, cs.Update(0))
	assert.InDelta(t, cfg.Speed*1.21, cs.Speed(), 1e-5, "no scroll this frame")

	input.ProcessMouseWheel(-100)
	require.NoError(t, cs.Update(0))
	assert.InDelta(t, cfg.Speed/10, cs.Speed(), 1e-5)

	start := cs.GetDefault().Position
	input.Update()
	input.ProcessKey(core.KEY_SPACE, true)
	require.NoError(t, cs.Update(1))
	assert.InDelta(t, start.Z()+cfg.Speed/10, cs.GetDefault().Position.Z(), 1e-5)
}

func TestCameraSystemAcquireRelease(t *testing.T) {
	cs, err := NewCameraSystem(core.DefaultConfig().Camera, core.NewInputState(), nil)
	require.NoError(t, err)

	assert.Same(t, cs.GetDefault(), cs.Acquire(DEFAULT_CAMERA_NAME))

	a := cs.Acquire("minimap")
	b := cs.Acquire("minimap")
	assert.Same(t, a, b)

	cs.Release("minimap")
	assert.Same(t, a, cs.Acquire("minimap"), "still referenced")
	cs.Release("minimap")
	cs.Release("minimap")
	assert.NotSame(t, a, cs.Acquire("minimap"))
}

func TestCameraSystemMatrices(t *testing.T) {
	cs, err := NewCameraSystem(core.DefaultConfig().Camera, core.NewInputState(), nil)
	require.NoError(t, err)
	view, proj := cs.Matrices(16.0 / 9.0)
	assert.Equal(t, cs.GetDefault().GetView(), view)
	assert.Less(t, proj[5], float32(0))
}
