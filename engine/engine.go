package engine

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/assets"
	"github.com/spaghettifunk/vkcoaster/engine/config"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/platform"
	"github.com/spaghettifunk/vkcoaster/engine/renderer"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
	"golang.org/x/image/math/f32"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	id           uuid.UUID
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    atomic.Bool
	isSuspended  bool

	events       *core.EventBus
	platform     *platform.Platform
	assetManager *assets.AssetManager
	backend      *vulkan.VulkanRenderer
	renderer     *renderer.Renderer
	shaders      *shader.Library

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		g.Config = config.Default()
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	level, err := core.ParseLogLevel(g.Config.Application.LogLevel)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(level)

	events := core.NewEventBus()
	return &Engine{
		id:           uuid.New(),
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.Config,
		events:       events,
		platform:     platform.New(events),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.Config.Application.Width,
		height:       g.Config.Application.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.id, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e.id, e.onResized)

	if err := e.platform.Startup(cfg.Application.Name,
		cfg.Application.PosX,
		cfg.Application.PosY,
		cfg.Application.Width,
		cfg.Application.Height); err != nil {
		return err
	}

	apiVersion, err := cfg.Renderer.VulkanAPIVersion()
	if err != nil {
		return err
	}
	e.backend = vulkan.New(e.platform, vulkan.RendererConfig{
		Context: vulkan.ContextConfig{
			ApplicationName: cfg.Application.Name,
			APIVersion:      apiVersion,
			Validation:      cfg.Renderer.Validation,
			FramesInFlight:  cfg.Renderer.FramesInFlight,
		},
		VSync:      cfg.Renderer.VSync,
		ClearColor: f32.Vec4(cfg.Renderer.ClearColor),
	})
	e.renderer = renderer.New(e.backend)
	if err := e.renderer.Initialize(); err != nil {
		return err
	}

	compiler := shader.NewDefaultCompiler(cfg.Shaders.Glslc, cfg.Renderer.APIVersion)
	e.shaders = shader.NewLibrary(e.backend.ModuleFactory(), compiler, cfg.Shaders.AssetsDir, shader.Options{
		Includes: &shader.IncludeResolver{Dirs: cfg.Shaders.IncludeDirs},
	})
	if err := e.shaders.AddListener(e.id, shader.Listener{
		OnAdd: func(name string, s *shader.Shader) {
			e.events.Fire(core.EVENT_CODE_SHADER_ADDED, e, core.EventContext{Name: name})
		},
		OnRemove: func(name string, s *shader.Shader) {
			e.events.Fire(core.EVENT_CODE_SHADER_REMOVED, e, core.EventContext{Name: name})
		},
	}); err != nil {
		core.LogFatal("engine could not listen to the shader library: %s", err)
		return err
	}

	if cfg.Shaders.HotReload {
		am, err := assets.NewAssetManager(assets.Options{
			Extensions:  shader.Extensions(),
			IncludeDirs: cfg.Shaders.IncludeDirs,
		})
		if err != nil {
			return err
		}
		if err := am.Initialize(cfg.Shaders.AssetsDir); err != nil {
			am.Close()
			return err
		}
		e.assetManager = am
	}

	e.gameInstance.Resources = &Resources{
		Config:  cfg,
		Context: e.backend.Context(),
		Target:  e.backend.Target(),
		Shaders: e.shaders,
		Events:  e.events,
		Metrics: e.metrics,
	}
	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	e.isRunning.Store(true)
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	targetFrameSeconds := 0.0
	if e.config.Application.FrameLimit > 0 {
		targetFrameSeconds = 1.0 / e.config.Application.FrameLimit
	}

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}

		e.reloadShaders()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			e.isRunning.Store(false)
			return err
		}

		if err := e.renderer.DrawFrame(delta, func(cmd *vulkan.VulkanCommandBuffer) error {
			return e.gameInstance.FnRender(cmd, delta)
		}); err != nil {
			core.LogError("Frame failed, shutting down: %s", err)
			e.isRunning.Store(false)
			return err
		}

		frameElapsedTime := platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(frameElapsedTime)
		if remaining := targetFrameSeconds - frameElapsedTime; targetFrameSeconds > 0 && remaining > 0 {
			// If there is time left, give it back to the OS.
			e.platform.Sleep(remaining * 1000)
		}
		if e.backend.FrameNumber%600 == 0 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("frame %d: %.0f fps, %.3f ms", e.backend.FrameNumber, fps, ms)
		}

		e.lastTime = currentTime
	}
	return nil
}

// reloadShaders drains the watcher without blocking. Pipelines are rebuilt
// by the library, so the device has to be idle first.
func (e *Engine) reloadShaders() {
	if e.assetManager == nil {
		return
	}
	idle := false
	for {
		select {
		case name := <-e.assetManager.Reloads():
			if _, ok := e.shaders.Get(name); !ok {
				continue
			}
			if !idle {
				if err := e.backend.Context().WaitIdle(); err != nil {
					return
				}
				idle = true
			}
			if err := e.shaders.Reload(name); err != nil {
				core.LogWarn("reload of shader `%s` failed, keeping it torn down until the next change: %s", name, err)
				continue
			}
			core.LogInfo("shader `%s` reloaded", name)
			e.events.Fire(core.EVENT_CODE_SHADER_RELOADED, e, core.EventContext{Name: name})
		default:
			return
		}
	}
}

// Stop asks the loop to exit after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error

	if e.backend != nil && e.backend.Context() != nil {
		if err := e.backend.Context().WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.assetManager != nil {
		if err := e.assetManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.shaders != nil {
		e.shaders.RemoveListener(e.id)
		e.shaders.Destroy()
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	e.events.Shutdown()
	if err := e.platform.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, context core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, context core.EventContext) bool {
	width, height := context.U32[0], context.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.OnResize(width, height)
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError("%s", err)
	}
	return false
}
