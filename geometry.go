package vkbackend

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	vertexBufferSize = vk.DeviceSize(20 * 1024 * 1024) // 1Mi Vertex3D
	indexBufferSize  = vk.DeviceSize(4 * 1024 * 1024)  // 1Mi uint32
)

// Geometry is a mesh living in the shared vertex and index buffers.
type Geometry struct {
	id           uint32
	vertexCount  uint32
	vertexOffset vk.DeviceSize
	indexCount   uint32
	indexOffset  vk.DeviceSize
}

func (g *Geometry) ID() uint32          { return g.id }
func (g *Geometry) VertexCount() uint32 { return g.vertexCount }
func (g *Geometry) IndexCount() uint32  { return g.indexCount }

// geometryBuffers bump allocates every mesh into one device local vertex
// buffer and one index buffer. Nothing is ever freed individually.
type geometryBuffers struct {
	log          *slog.Logger
	vertices     *CoreBuffer
	indices      *CoreBuffer
	vertexOffset vk.DeviceSize
	indexOffset  vk.DeviceSize
	nextID       uint32
}

func newGeometryBuffers(dev memoryDevice, vertexSize, indexSize vk.DeviceSize, log *slog.Logger) (*geometryBuffers, error) {
	local := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	vertices, err := newCoreBuffer(dev, vertexSize, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), local, true)
	if err != nil {
		return nil, errors.Wrap(err, "creating vertex buffer")
	}
	indices, err := newCoreBuffer(dev, indexSize, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), local, true)
	if err != nil {
		vertices.Destroy()
		return nil, errors.Wrap(err, "creating index buffer")
	}
	return &geometryBuffers{log: log, vertices: vertices, indices: indices}, nil
}

// reserve grows b until size bytes fit at offset.
func (g *geometryBuffers) reserve(b *CoreBuffer, offset, size vk.DeviceSize) error {
	need := offset + size
	if need <= b.Size() {
		return nil
	}
	grown := b.Size()
	for grown < need {
		grown *= 2
	}
	g.log.Info("growing geometry buffer", slog.Uint64("from", uint64(b.Size())), slog.Uint64("to", uint64(grown)))
	return b.Resize(grown)
}

// upload appends a mesh. The offsets only advance once both ranges are
// written, so a failed upload leaves no hole.
func (g *geometryBuffers) upload(vertices []Vertex3D, indices []uint32) (*Geometry, error) {
	if len(vertices) == 0 {
		return nil, errors.Mark(errors.New("geometry without vertices"), ErrInvalidValue)
	}
	vertexData := sliceBytes(vertices)
	indexData := sliceBytes(indices)
	vertexSize := vk.DeviceSize(len(vertexData))
	indexSize := vk.DeviceSize(len(indexData))

	if err := g.reserve(g.vertices, g.vertexOffset, vertexSize); err != nil {
		return nil, err
	}
	if indexSize > 0 {
		if err := g.reserve(g.indices, g.indexOffset, indexSize); err != nil {
			return nil, err
		}
	}
	if err := Upload(g.vertices, g.vertexOffset, vertexData); err != nil {
		return nil, errors.Wrap(err, "uploading vertices")
	}
	if err := Upload(g.indices, g.indexOffset, indexData); err != nil {
		return nil, errors.Wrap(err, "uploading indices")
	}

	geo := &Geometry{
		id:           g.nextID,
		vertexCount:  uint32(len(vertices)),
		vertexOffset: g.vertexOffset,
		indexCount:   uint32(len(indices)),
		indexOffset:  g.indexOffset,
	}
	g.vertexOffset += vertexSize
	g.indexOffset += indexSize
	g.nextID++
	return geo, nil
}

// draw binds geo's ranges and records the draw.
func (g *geometryBuffers) draw(cmd vk.CommandBuffer, geo *Geometry) {
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{g.vertices.Handle()}, []vk.DeviceSize{geo.vertexOffset})
	if geo.indexCount == 0 {
		vk.CmdDraw(cmd, geo.vertexCount, 1, 0, 0)
		return
	}
	vk.CmdBindIndexBuffer(cmd, g.indices.Handle(), geo.indexOffset, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(cmd, geo.indexCount, 1, 0, 0, 0)
}

func (g *geometryBuffers) Destroy() {
	g.indices.Destroy()
	g.vertices.Destroy()
}
