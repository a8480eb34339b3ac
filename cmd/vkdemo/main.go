// Command vkdemo opens a window and draws a spinning textured quad.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/andewx/vkbackend"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxTextureSide bounds uploaded images; larger ones are scaled down.
const maxTextureSide = 2048

func init() {
	// glfw must run on the main thread
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vkdemo: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML or YAML config file")
	texturePath := flag.String("texture", "", "image drawn on the quad (png, jpeg, bmp, webp)")
	flag.Parse()

	cfg := vkbackend.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = vkbackend.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	logger, closer, err := vkbackend.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	display, err := vkbackend.NewDisplay(cfg.Window)
	if err != nil {
		return err
	}
	defer display.Destroy()

	backend, err := vkbackend.NewVulkanBackend(cfg.App.Name, display, cfg, logger)
	if err != nil {
		return err
	}
	width, height := display.FramebufferSize()
	renderer := vkbackend.NewRenderer(backend, width, height, logger)
	display.OnResize(renderer.Resize)

	scene, err := newScene(backend, *texturePath)
	if err != nil {
		return errors.CombineErrors(err, renderer.Shutdown())
	}

	start := time.Now()
	last := start
	for !display.ShouldClose() {
		display.PollEvents()
		if w, h := display.FramebufferSize(); w == 0 || h == 0 {
			// minimized: nothing to draw until the next event
			display.WaitEvents()
			continue
		}
		now := time.Now()
		packet := scene.packet(now.Sub(start), now.Sub(last))
		last = now
		if err := renderer.DrawFrame(packet); err != nil {
			logger.Error("draw frame", slog.Any("error", err))
			return errors.CombineErrors(err, renderer.Shutdown())
		}
	}

	if err := scene.release(backend); err != nil {
		logger.Warn("releasing scene", slog.Any("error", err))
	}
	return renderer.Shutdown()
}

type scene struct {
	object   vkbackend.ObjectID
	geometry *vkbackend.Geometry
	texture  *vkbackend.Texture
}

// quad faces the default camera at (0, 0, -1).
var (
	quadVertices = []vkbackend.Vertex3D{
		{Position: [3]float32{-0.25, -0.25, 0}, TexCoord: [2]float32{0, 0}},
		{Position: [3]float32{0.25, -0.25, 0}, TexCoord: [2]float32{1, 0}},
		{Position: [3]float32{0.25, 0.25, 0}, TexCoord: [2]float32{1, 1}},
		{Position: [3]float32{-0.25, 0.25, 0}, TexCoord: [2]float32{0, 1}},
	}
	quadIndices = []uint32{0, 2, 1, 0, 3, 2}
)

func newScene(backend vkbackend.Backend, texturePath string) (*scene, error) {
	s := &scene{}
	var err error
	if s.geometry, err = backend.UploadGeometry(quadVertices, quadIndices); err != nil {
		return nil, err
	}
	if s.object, err = backend.AcquireObject(); err != nil {
		return nil, err
	}
	if texturePath != "" {
		params, err := loadTexture(texturePath)
		if err != nil {
			return nil, err
		}
		if s.texture, err = backend.CreateTexture(params); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *scene) packet(elapsed, delta time.Duration) vkbackend.RenderPacket {
	angle := float32(elapsed.Seconds())
	data := vkbackend.GeometryRenderData{
		ObjectID: s.object,
		Model:    mgl32.HomogRotate3DZ(angle),
		Geometry: s.geometry,
	}
	data.Textures[0] = s.texture
	return vkbackend.RenderPacket{
		DeltaTime:  delta.Seconds(),
		Geometries: []vkbackend.GeometryRenderData{data},
	}
}

func (s *scene) release(backend vkbackend.Backend) error {
	var err error
	if s.texture != nil {
		err = backend.DestroyTexture(s.texture)
	}
	return errors.CombineErrors(err, backend.ReleaseObject(s.object))
}

// loadTexture decodes an image file into RGBA texture parameters.
func loadTexture(path string) (vkbackend.TextureParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return vkbackend.TextureParams{}, errors.Wrap(err, "opening texture")
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return vkbackend.TextureParams{}, errors.Wrapf(err, "decoding %s", path)
	}

	bounds := src.Bounds()
	dstRect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	if side := max(bounds.Dx(), bounds.Dy()); side > maxTextureSide {
		dstRect = image.Rect(0, 0, bounds.Dx()*maxTextureSide/side, bounds.Dy()*maxTextureSide/side)
	}
	rgba := image.NewRGBA(dstRect)
	if dstRect.Size() == bounds.Size() {
		xdraw.Draw(rgba, dstRect, src, bounds.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(rgba, dstRect, src, bounds, xdraw.Src, nil)
	}

	return vkbackend.TextureParams{
		Name:        path + " (" + format + ")",
		Width:       uint32(dstRect.Dx()),
		Height:      uint32(dstRect.Dy()),
		Channels:    4,
		Pixels:      rgba.Pix,
		Transparent: !rgba.Opaque(),
		AutoRelease: true,
	}, nil
}
