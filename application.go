package vkbackend

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Backend is the GPU side of the Renderer. *VulkanBackend implements it.
type Backend interface {
	Resize(width, height uint32)
	BeginFrame(delta float64) (bool, error)
	UpdateGlobalState(state GlobalState) error
	UpdateObject(data GeometryRenderData) error
	EndFrame(delta float64) error

	CreateTexture(p TextureParams) (*Texture, error)
	ReloadTexture(tex *Texture, p TextureParams) error
	DestroyTexture(tex *Texture) error
	UploadGeometry(vertices []Vertex3D, indices []uint32) (*Geometry, error)
	AcquireObject() (ObjectID, error)
	ReleaseObject(id ObjectID) error

	FrameNumber() uint64
	Shutdown() error
}

var _ Backend = (*VulkanBackend)(nil)

// GlobalState is the per frame camera and lighting state.
type GlobalState struct {
	Projection    mgl32.Mat4
	View          mgl32.Mat4
	ViewPosition  mgl32.Vec3
	AmbientColour mgl32.Vec4
	Mode          RenderMode
}

func (g GlobalState) uniform() GlobalUniform {
	return GlobalUniform{
		Projection:    g.Projection,
		View:          g.View,
		ViewPosition:  g.ViewPosition.Vec4(1),
		AmbientColour: g.AmbientColour,
		Mode:          g.Mode,
	}
}

// GeometryRenderData is one draw: an object, its transform and textures,
// and optionally the mesh to draw. Nil textures use the default texture.
type GeometryRenderData struct {
	ObjectID ObjectID
	Model    mgl32.Mat4
	Textures [MaxObjectTextures]*Texture
	Geometry *Geometry
}

// RenderPacket is everything the game loop hands over for one frame.
type RenderPacket struct {
	DeltaTime  float64
	Geometries []GeometryRenderData
}

// Renderer is the frontend the game loop talks to. It owns the camera and
// turns render packets into backend frames.
type Renderer struct {
	backend Backend
	camera  *Camera
	log     *slog.Logger

	Ambient mgl32.Vec4
	Mode    RenderMode
}

func NewRenderer(backend Backend, width, height uint32, log *slog.Logger) *Renderer {
	if log == nil {
		log = discardLogger()
	}
	r := &Renderer{
		backend: backend,
		camera:  NewCamera(1),
		log:     log.With("component", "renderer"),
		Ambient: mgl32.Vec4{0.25, 0.25, 0.25, 1},
	}
	r.camera.SetAspect(aspect(width, height))
	return r
}

func aspect(width, height uint32) float32 {
	if height == 0 {
		return 0
	}
	return float32(width) / float32(height)
}

func (r *Renderer) Camera() *Camera { return r.camera }

// Resize forwards a framebuffer size change. It is safe to call from the
// window's resize callback.
func (r *Renderer) Resize(width, height uint32) {
	r.camera.SetAspect(aspect(width, height))
	r.backend.Resize(width, height)
}

// DrawFrame renders one packet. A skipped frame is not an error. Once a
// frame has begun it is always ended, so a failing draw does not wedge the
// frame slot.
func (r *Renderer) DrawFrame(packet RenderPacket) error {
	ok, err := r.backend.BeginFrame(packet.DeltaTime)
	if err != nil {
		return errors.Wrap(err, "begin frame")
	}
	if !ok {
		return nil
	}

	drawErr := r.backend.UpdateGlobalState(GlobalState{
		Projection:    r.camera.Projection(),
		View:          r.camera.View(),
		ViewPosition:  r.camera.Eye,
		AmbientColour: r.Ambient,
		Mode:          r.Mode,
	})
	for _, g := range packet.Geometries {
		if drawErr != nil {
			break
		}
		drawErr = r.backend.UpdateObject(g)
	}
	if err := r.backend.EndFrame(packet.DeltaTime); err != nil {
		return errors.CombineErrors(drawErr, errors.Wrap(err, "end frame"))
	}
	return drawErr
}

func (r *Renderer) Shutdown() error {
	r.log.Info("renderer shutting down", slog.Uint64("frames", r.backend.FrameNumber()))
	return r.backend.Shutdown()
}
