package vkbackend

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls     []string
	begin     bool
	beginErr  error
	objectErr error
	endErr    error
	globals   []GlobalState
	objects   []ObjectID
	resized   [2]uint32
	frames    uint64
}

func (b *fakeBackend) Resize(width, height uint32) {
	b.calls = append(b.calls, "resize")
	b.resized = [2]uint32{width, height}
}

func (b *fakeBackend) BeginFrame(float64) (bool, error) {
	b.calls = append(b.calls, "begin")
	return b.begin, b.beginErr
}

func (b *fakeBackend) UpdateGlobalState(state GlobalState) error {
	b.calls = append(b.calls, "global")
	b.globals = append(b.globals, state)
	return nil
}

func (b *fakeBackend) UpdateObject(data GeometryRenderData) error {
	b.calls = append(b.calls, "object")
	b.objects = append(b.objects, data.ObjectID)
	return b.objectErr
}

func (b *fakeBackend) EndFrame(float64) error {
	b.calls = append(b.calls, "end")
	b.frames++
	return b.endErr
}

func (b *fakeBackend) CreateTexture(TextureParams) (*Texture, error) { return &Texture{}, nil }
func (b *fakeBackend) ReloadTexture(*Texture, TextureParams) error   { return nil }
func (b *fakeBackend) DestroyTexture(*Texture) error                 { return nil }
func (b *fakeBackend) UploadGeometry([]Vertex3D, []uint32) (*Geometry, error) {
	return &Geometry{}, nil
}
func (b *fakeBackend) AcquireObject() (ObjectID, error) { return 0, nil }
func (b *fakeBackend) ReleaseObject(ObjectID) error     { return nil }
func (b *fakeBackend) FrameNumber() uint64              { return b.frames }

func (b *fakeBackend) Shutdown() error {
	b.calls = append(b.calls, "shutdown")
	return nil
}

func packetOf(ids ...ObjectID) RenderPacket {
	p := RenderPacket{DeltaTime: 1.0 / 60}
	for _, id := range ids {
		p.Geometries = append(p.Geometries, GeometryRenderData{ObjectID: id, Model: mgl32.Ident4()})
	}
	return p
}

func TestDrawFrameOrder(t *testing.T) {
	backend := &fakeBackend{begin: true}
	r := NewRenderer(backend, 800, 600, nil)

	require.NoError(t, r.DrawFrame(packetOf(1, 2)))
	assert.Equal(t, []string{"begin", "global", "object", "object", "end"}, backend.calls)
	assert.Equal(t, []ObjectID{1, 2}, backend.objects)

	global := backend.globals[0]
	assert.Equal(t, r.Camera().Projection(), global.Projection)
	assert.Equal(t, r.Camera().View(), global.View)
	assert.Equal(t, r.Camera().Eye, global.ViewPosition)
	assert.Equal(t, r.Ambient, global.AmbientColour)
}

func TestDrawFrameSkipped(t *testing.T) {
	backend := &fakeBackend{begin: false}
	r := NewRenderer(backend, 800, 600, nil)

	require.NoError(t, r.DrawFrame(packetOf(1)))
	assert.Equal(t, []string{"begin"}, backend.calls)
}

func TestDrawFrameBeginError(t *testing.T) {
	backend := &fakeBackend{beginErr: ErrNotInitialized}
	r := NewRenderer(backend, 800, 600, nil)

	err := r.DrawFrame(packetOf(1))
	assertMarked(t, err, ErrNotInitialized)
	assert.Equal(t, []string{"begin"}, backend.calls)
}

func TestDrawFrameEndsAfterObjectError(t *testing.T) {
	backend := &fakeBackend{begin: true, objectErr: errors.Mark(errors.New("bad object"), ErrInvalidValue)}
	r := NewRenderer(backend, 800, 600, nil)

	err := r.DrawFrame(packetOf(1, 2, 3))
	assertMarked(t, err, ErrInvalidValue)
	assert.Equal(t, []string{"begin", "global", "object", "end"}, backend.calls)

	backend.calls = nil
	backend.objectErr = nil
	backend.endErr = errors.Mark(errors.New("present failed"), ErrVulkanFailed)
	err = r.DrawFrame(packetOf(1))
	assertMarked(t, err, ErrVulkanFailed)
	assert.Contains(t, err.Error(), "end frame")
}

func TestRendererResize(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRenderer(backend, 800, 400, nil)
	assert.Equal(t, float32(2), r.Camera().Aspect())

	r.Resize(300, 300)
	assert.Equal(t, float32(1), r.Camera().Aspect())
	assert.Equal(t, [2]uint32{300, 300}, backend.resized)

	r.Resize(0, 0)
	assert.Equal(t, float32(1), r.Camera().Aspect(), "a minimized window keeps the last aspect")
	assert.Equal(t, [2]uint32{0, 0}, backend.resized)
}

func TestRendererShutdown(t *testing.T) {
	backend := &fakeBackend{begin: true}
	r := NewRenderer(backend, 1, 1, nil)
	require.NoError(t, r.DrawFrame(packetOf()))
	require.NoError(t, r.Shutdown())
	assert.Equal(t, "shutdown", backend.calls[len(backend.calls)-1])
}

func TestGlobalStateUniform(t *testing.T) {
	u := GlobalState{
		ViewPosition:  mgl32.Vec3{1, 2, 3},
		AmbientColour: mgl32.Vec4{0.5, 0.5, 0.5, 1},
		Mode:          RenderModeNormals,
	}.uniform()
	assert.Equal(t, mgl32.Vec4{1, 2, 3, 1}, u.ViewPosition)
	assert.Equal(t, RenderModeNormals, u.Mode)
}
