package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	defaultTextureName = "default"
	defaultTextureSize = 256
	maxSamplerAniso    = 16
)

// TextureParams describes the pixels handed to CreateTexture. Pixels holds
// Width*Height*Channels bytes, rows top to bottom.
type TextureParams struct {
	Name        string
	Width       uint32
	Height      uint32
	Channels    uint32
	Pixels      []byte
	Transparent bool
	// AutoRelease textures are destroyed by Shutdown if the caller has not done so.
	AutoRelease bool
}

func (p TextureParams) validate() error {
	if p.Width == 0 || p.Height == 0 {
		return errors.Mark(errors.Newf("texture %q has size %dx%d", p.Name, p.Width, p.Height), ErrInvalidValue)
	}
	if p.Channels < 1 || p.Channels > 4 {
		return errors.Mark(errors.Newf("texture %q has %d channels", p.Name, p.Channels), ErrInvalidValue)
	}
	if want := int(p.Width) * int(p.Height) * int(p.Channels); len(p.Pixels) != want {
		return errors.Mark(errors.Newf("texture %q holds %d bytes, want %d", p.Name, len(p.Pixels), want), ErrInvalidValue)
	}
	return nil
}

// rgba widens pixels to four channels. Grey is replicated, missing alpha is opaque.
func (p TextureParams) rgba() []byte {
	if p.Channels == 4 {
		return p.Pixels
	}
	count := int(p.Width) * int(p.Height)
	out := make([]byte, count*4)
	for i := 0; i < count; i++ {
		src := p.Pixels[i*int(p.Channels) : (i+1)*int(p.Channels)]
		dst := out[i*4 : i*4+4]
		switch p.Channels {
		case 1:
			dst[0], dst[1], dst[2] = src[0], src[0], src[0]
		case 2:
			dst[0], dst[1], dst[2] = src[0], src[0], src[0]
		case 3:
			copy(dst, src)
		}
		dst[3] = 0xFF
		if p.Channels == 2 {
			dst[3] = src[1]
		}
	}
	return out
}

// checkerboard is the pixel data of the texture used when a draw names none.
func checkerboard(size uint32) TextureParams {
	pixels := make([]byte, size*size*4)
	for row := uint32(0); row < size; row++ {
		for col := uint32(0); col < size; col++ {
			px := pixels[(row*size+col)*4:]
			px[0], px[1], px[2], px[3] = 0xFF, 0xFF, 0xFF, 0xFF
			if row%2 == col%2 {
				px[0], px[1] = 0, 0
			}
		}
	}
	return TextureParams{Name: defaultTextureName, Width: size, Height: size, Channels: 4, Pixels: pixels}
}

// Texture is a sampled RGBA image. The generation starts at zero on upload;
// the default texture has none.
type Texture struct {
	name        string
	id          uint32
	width       uint32
	height      uint32
	channels    uint32
	transparent bool
	autoRelease bool
	generation  uint32

	device  vk.Device
	image   *CoreImage
	sampler vk.Sampler
}

func (t *Texture) Name() string        { return t.name }
func (t *Texture) ID() uint32          { return t.id }
func (t *Texture) Width() uint32       { return t.width }
func (t *Texture) Height() uint32      { return t.height }
func (t *Texture) Channels() uint32    { return t.channels }
func (t *Texture) Transparent() bool   { return t.transparent }
func (t *Texture) Generation() uint32  { return t.generation }
func (t *Texture) Sampler() vk.Sampler { return t.sampler }

func (t *Texture) View() vk.ImageView {
	if t.image == nil {
		return vk.NullImageView
	}
	return t.image.View()
}

// newTexture uploads p into a device local image and creates its sampler.
func newTexture(dev *CoreDevice, pool *CorePool, id uint32, p TextureParams) (_ *Texture, err error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tex := &Texture{
		name:        p.Name,
		id:          id,
		width:       p.Width,
		height:      p.Height,
		channels:    p.Channels,
		transparent: p.Transparent,
		autoRelease: p.AutoRelease,
		device:      dev.Handle(),
	}
	defer func() {
		if err != nil {
			tex.Destroy()
		}
	}()

	pixels := p.rgba()
	tex.image, err = NewCoreImage(dev, ImageParams{
		Type:        vk.ImageType2d,
		Width:       p.Width,
		Height:      p.Height,
		Format:      vk.FormatR8g8b8a8Unorm,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		MemoryFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		CreateView:  true,
		ViewAspect:  vk.ImageAspectFlags(vk.ImageAspectColorBit),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating image for texture %q", p.Name)
	}

	if err := tex.upload(dev, pool, pixels); err != nil {
		return nil, err
	}

	if tex.sampler, err = createSampler(tex.device, samplerAnisotropy(dev.MaxAnisotropy())); err != nil {
		return nil, err
	}
	return tex, nil
}

// upload copies pixels into the image through a staging buffer, leaving it
// ready for sampling. The previous contents are discarded.
func (t *Texture) upload(dev *CoreDevice, pool *CorePool, pixels []byte) error {
	staging, err := NewCoreBuffer(dev, pool, vk.DeviceSize(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisibleCoherent, true)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	if err := staging.LoadData(0, pixels); err != nil {
		return err
	}

	err = pool.SingleUse(dev.Queues().Graphics(), func(cmd vk.CommandBuffer) error {
		if err := t.image.TransitionLayout(cmd, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		t.image.CopyFromBuffer(cmd, staging.Handle())
		return t.image.TransitionLayout(cmd, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
	return errors.Wrapf(err, "uploading texture %q", t.name)
}

// checkReload rejects pixels that do not fit the existing image.
func (t *Texture) checkReload(p TextureParams) error {
	if t.image == nil {
		return errors.Mark(errors.Newf("texture %q is destroyed", t.name), ErrInvalidState)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.Width != t.width || p.Height != t.height {
		return errors.Mark(errors.Newf("texture %q is %dx%d, reload has %dx%d",
			t.name, t.width, t.height, p.Width, p.Height), ErrInvalidValue)
	}
	return nil
}

// bumpGeneration marks every descriptor referencing t as stale. Unversioned
// textures stay unversioned.
func (t *Texture) bumpGeneration() {
	if t.generation == InvalidGeneration {
		return
	}
	t.generation++
	if t.generation == InvalidGeneration {
		t.generation = 0
	}
}

// samplerAnisotropy clamps the requested anisotropy to the device limit.
func samplerAnisotropy(limit float32) float32 {
	if limit < maxSamplerAniso {
		return limit
	}
	return maxSamplerAniso
}

func createSampler(device vk.Device, anisotropy float32) (vk.Sampler, error) {
	var sampler vk.Sampler
	ret := vk.CreateSampler(device, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        boolToVk(anisotropy > 1),
		MaxAnisotropy:           anisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}, nil, &sampler)
	if err := vkCall(ret, "vkCreateSampler"); err != nil {
		return vk.NullSampler, err
	}
	return sampler, nil
}

// Destroy releases the sampler and the image. Safe to call twice.
func (t *Texture) Destroy() {
	if t.sampler != vk.NullSampler {
		vk.DestroySampler(t.device, t.sampler, nil)
		t.sampler = vk.NullSampler
	}
	if t.image != nil {
		t.image.Destroy()
		t.image = nil
	}
	t.generation = InvalidGeneration
}
