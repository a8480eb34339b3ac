package vkbackend

import (
	"io/fs"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// VulkanBackend owns the Vulkan context and every GPU resource of the
// renderer. Bring-up and teardown are strictly ordered through a release
// arena.
//
// A VulkanBackend is not safe for concurrent use. One goroutine, normally
// the one owning the window, drives it from NewVulkanBackend to Shutdown.
type VulkanBackend struct {
	cfg      Config
	log      *slog.Logger
	platform Platform
	arena    *releaseArena

	instance   vk.Instance
	surface    vk.Surface
	device     *CoreDevice
	swapchain  *CoreSwapchain
	renderPass *CoreRenderPass
	pool       *CorePool
	sync       *syncManager
	frames     *vkFrameDevice
	loop       *frameLoop

	shader   *ObjectShader
	geometry *geometryBuffers

	textures       map[uint32]*Texture
	defaultTexture *Texture
	nextTextureID  uint32

	width, height uint32
	down          bool
}

// NewVulkanBackend brings the backend up against platform, loading shaders
// from cfg.Shaders.Dir. On failure everything created so far is released
// and the error is marked ErrInitializationFailed.
func NewVulkanBackend(appName string, platform Platform, cfg Config, logger *slog.Logger) (*VulkanBackend, error) {
	return NewVulkanBackendFS(appName, platform, cfg, os.DirFS(cfg.Shaders.Dir), logger)
}

// NewVulkanBackendFS is NewVulkanBackend with compiled shaders read from shaders.
func NewVulkanBackendFS(appName string, platform Platform, cfg Config, shaders fs.FS, logger *slog.Logger) (_ *VulkanBackend, err error) {
	if logger == nil {
		logger = discardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, initFailed(err, "invalid config")
	}
	b := &VulkanBackend{
		cfg:      cfg,
		log:      logger.With("component", "backend"),
		platform: platform,
		arena:    newReleaseArena(logger.With("component", "release")),
		textures: map[uint32]*Texture{},
	}
	defer func() {
		if err != nil {
			if rerr := b.arena.release(); rerr != nil {
				b.log.Error("releasing after failed init", slog.Any("error", rerr))
			}
			err = errors.Mark(err, ErrInitializationFailed)
		}
	}()

	if err := loadVulkan(platform); err != nil {
		return nil, err
	}
	if b.instance, err = createInstance(appName, platform, cfg.Debug, logger.With("component", "instance"), b.arena); err != nil {
		return nil, err
	}
	if b.surface, err = platform.CreateSurface(b.instance); err != nil {
		return nil, errors.Wrap(err, "creating surface")
	}
	b.arena.pushFunc("surface", func() {
		vk.DestroySurface(b.instance, b.surface, nil)
	})

	if b.device, err = newCoreDevice(b.instance, b.surface, cfg.Device, logger.With("component", "device"), b.arena); err != nil {
		return nil, err
	}
	if err := b.initSwapchain(); err != nil {
		return nil, err
	}
	if err := b.initFrames(); err != nil {
		return nil, err
	}
	if err := b.initResources(shaders); err != nil {
		return nil, err
	}

	b.log.Info("backend initialized",
		slog.String("app", appName),
		slog.String("gpu", b.device.Name()),
		slog.Int("frames_in_flight", int(cfg.Frames.MaxInFlight)))
	return b, nil
}

func (b *VulkanBackend) initSwapchain() error {
	b.width, b.height = b.platform.FramebufferSize()
	if b.width == 0 || b.height == 0 {
		b.width, b.height = b.cfg.Window.Width, b.cfg.Window.Height
	}
	b.swapchain = newCoreSwapchain(&vkSwapchainDevice{dev: b.device, surface: b.surface},
		b.cfg.Swapchain.PresentMode, b.device.DepthFormat(), b.log.With("component", "swapchain"))
	if err := b.swapchain.Create(b.width, b.height); err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	b.arena.pushFunc("swapchain", b.swapchain.Destroy)

	rp, err := newCoreRenderPass(b.device.Handle(), b.swapchain.Format().Format, b.device.DepthFormat(), b.cfg.Pipeline.ClearColor)
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}
	b.renderPass = rp
	b.arena.pushFunc("render pass", rp.Destroy)
	if err := b.swapchain.AttachRenderPass(rp.Handle()); err != nil {
		return errors.Wrap(err, "creating framebuffers")
	}
	return nil
}

func (b *VulkanBackend) initFrames() error {
	slots := int(b.cfg.Frames.MaxInFlight)
	pool, err := NewCorePool(b.device.Handle(), b.device.Queues().GraphicsFamily())
	if err != nil {
		return err
	}
	b.pool = pool
	b.arena.pushFunc("command pool", pool.Destroy)

	cmds, err := pool.Allocate(slots)
	if err != nil {
		return err
	}
	if b.sync, err = newSyncManager(b.device.Handle(), slots); err != nil {
		return err
	}
	b.arena.pushFunc("sync objects", b.sync.Destroy)

	b.frames = &vkFrameDevice{
		device:     b.device.Handle(),
		queues:     b.device.Queues(),
		sync:       b.sync,
		cmds:       cmds,
		swapchain:  b.swapchain,
		renderPass: b.renderPass,
	}
	b.loop = newFrameLoop(b.frames, b.swapchain, slots, b.width, b.height, b.log.With("component", "frame"))
	return nil
}

func (b *VulkanBackend) initResources(shaders fs.FS) error {
	mem := newVkMemoryDevice(b.device, b.pool)
	shader, err := newObjectShader(b.device.Handle(), mem, objectShaderParams{
		fsys:       shaders,
		name:       b.cfg.Shaders.Object,
		renderPass: b.renderPass.Handle(),
		slots:      int(b.cfg.Frames.MaxInFlight),
		wireframe:  b.cfg.Pipeline.Wireframe,
	}, b.log.With("component", "shader"))
	if err != nil {
		return errors.Wrap(err, "creating object shader")
	}
	b.shader = shader
	b.arena.pushFunc("object shader", shader.Destroy)

	if b.geometry, err = newGeometryBuffers(mem, vertexBufferSize, indexBufferSize, b.log.With("component", "geometry")); err != nil {
		return err
	}
	b.arena.pushFunc("geometry buffers", b.geometry.Destroy)

	if b.defaultTexture, err = newTexture(b.device, b.pool, b.nextID(), checkerboard(defaultTextureSize)); err != nil {
		return errors.Wrap(err, "creating default texture")
	}
	b.defaultTexture.generation = InvalidGeneration
	b.arena.pushFunc("default texture", b.defaultTexture.Destroy)
	b.shader.setFallback(b.defaultTexture)

	b.arena.pushFunc("textures", b.releaseTextures)
	return nil
}

func (b *VulkanBackend) nextID() uint32 {
	id := b.nextTextureID
	b.nextTextureID++
	return id
}

// releaseTextures destroys the auto release textures the caller left alive.
func (b *VulkanBackend) releaseTextures() {
	for id, tex := range b.textures {
		if !tex.autoRelease {
			b.log.Warn("texture not destroyed by its owner", slog.String("name", tex.name))
		}
		tex.Destroy()
		delete(b.textures, id)
	}
}

// Shutdown waits for the GPU and releases everything in reverse creation
// order. Every step runs even when an earlier one fails.
func (b *VulkanBackend) Shutdown() error {
	if b.down {
		return nil
	}
	b.down = true
	var result error
	if err := b.device.WaitIdle(); err != nil {
		b.log.Error("waiting for device idle", slog.Any("error", err))
		result = errors.Mark(err, ErrShutdownFailed)
	}
	result = errors.CombineErrors(result, b.arena.release())
	b.log.Info("backend shut down")
	return result
}

// Resize records the new framebuffer size. The swapchain is rebuilt by the
// next BeginFrame; a 0x0 size suspends rendering until the next resize.
func (b *VulkanBackend) Resize(width, height uint32) {
	b.width, b.height = width, height
	if b.loop != nil {
		b.loop.resize(width, height)
	}
}

func (b *VulkanBackend) ready() error {
	if b.down || b.loop == nil {
		return errors.Mark(errors.New("backend is not initialized"), ErrNotInitialized)
	}
	return nil
}

// BeginFrame waits for the current frame slot, acquires an image and starts
// recording. It returns false when the frame must be skipped.
func (b *VulkanBackend) BeginFrame(delta float64) (bool, error) {
	if err := b.ready(); err != nil {
		return false, err
	}
	ok, err := b.loop.begin()
	if err != nil || !ok {
		return false, err
	}
	b.shader.use(b.currentCommands())
	return true, nil
}

// EndFrame submits the recorded frame and presents it.
func (b *VulkanBackend) EndFrame(delta float64) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.loop.end()
}

func (b *VulkanBackend) currentCommands() vk.CommandBuffer {
	return b.frames.commandBuffer(b.loop.currentSlot()).Handle()
}

func (b *VulkanBackend) recording() error {
	if err := b.ready(); err != nil {
		return err
	}
	if !b.loop.recording() {
		return errors.Mark(errors.New("no frame is being recorded"), ErrInvalidState)
	}
	return nil
}

func (b *VulkanBackend) UpdateGlobalState(state GlobalState) error {
	if err := b.recording(); err != nil {
		return err
	}
	return b.shader.updateGlobal(b.currentCommands(), b.loop.currentSlot(), state.uniform())
}

func (b *VulkanBackend) UpdateObject(data GeometryRenderData) error {
	if err := b.recording(); err != nil {
		return err
	}
	return b.shader.updateObject(b.currentCommands(), b.loop.currentSlot(), b.loop.frameNumber, data, b.geometry)
}

// CreateTexture uploads p and returns a texture at generation zero.
func (b *VulkanBackend) CreateTexture(p TextureParams) (*Texture, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	tex, err := newTexture(b.device, b.pool, b.nextID(), p)
	if err != nil {
		return nil, err
	}
	b.textures[tex.id] = tex
	b.log.Debug("texture created", slog.String("name", tex.name), slog.Uint64("id", uint64(tex.id)),
		slog.Int("width", int(tex.width)), slog.Int("height", int(tex.height)))
	return tex, nil
}

// ReloadTexture replaces the pixels of tex, which must keep its size, and
// advances its generation so every object set sampling it is rewritten.
func (b *VulkanBackend) ReloadTexture(tex *Texture, p TextureParams) error {
	if err := b.ready(); err != nil {
		return err
	}
	if _, ok := b.textures[tex.id]; !ok || tex == b.defaultTexture {
		return errors.Mark(errors.Newf("texture %q is not owned by this backend", tex.name), ErrInvalidValue)
	}
	if err := tex.checkReload(p); err != nil {
		return err
	}
	// frames in flight may still sample the old contents
	if err := b.device.WaitIdle(); err != nil {
		return err
	}
	if err := tex.upload(b.device, b.pool, p.rgba()); err != nil {
		return err
	}
	tex.channels = p.Channels
	tex.transparent = p.Transparent
	tex.bumpGeneration()
	b.log.Debug("texture reloaded", slog.String("name", tex.name), slog.Uint64("generation", uint64(tex.generation)))
	return nil
}

// DestroyTexture waits for the GPU to stop using tex and releases it.
func (b *VulkanBackend) DestroyTexture(tex *Texture) error {
	if err := b.ready(); err != nil {
		return err
	}
	if _, ok := b.textures[tex.id]; !ok || tex == b.defaultTexture {
		return errors.Mark(errors.Newf("texture %q is not owned by this backend", tex.name), ErrInvalidValue)
	}
	if err := b.device.WaitIdle(); err != nil {
		return err
	}
	tex.Destroy()
	delete(b.textures, tex.id)
	return nil
}

// UploadGeometry copies a mesh into the shared geometry buffers.
func (b *VulkanBackend) UploadGeometry(vertices []Vertex3D, indices []uint32) (*Geometry, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.geometry.upload(vertices, indices)
}

// AcquireObject reserves descriptor resources for one drawable object.
func (b *VulkanBackend) AcquireObject() (ObjectID, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	return b.shader.AcquireResources()
}

func (b *VulkanBackend) ReleaseObject(id ObjectID) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := b.device.WaitIdle(); err != nil {
		return err
	}
	return b.shader.ReleaseResources(id)
}

// FrameNumber counts the frames presented so far.
func (b *VulkanBackend) FrameNumber() uint64 {
	if b.loop == nil {
		return 0
	}
	return b.loop.frameNumber
}

// AspectRatio of the current framebuffer, zero while minimized.
func (b *VulkanBackend) AspectRatio() float32 {
	if b.height == 0 {
		return 0
	}
	return float32(b.width) / float32(b.height)
}

func (b *VulkanBackend) Device() *CoreDevice { return b.device }
