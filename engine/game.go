package engine

// Game is the application driven by the engine. Every callback is optional
// and runs on the main goroutine.
type Game struct {
	Name         string
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnShutdown   Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, deltaTime float64) error
type Shutdown func(e *Engine) error
