package vkbackend

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// safeString returns a NUL terminated copy of s, as the C side expects.
func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// trimString strips the NUL terminator added by safeString.
func trimString(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\x00' {
		return s[:len(s)-1]
	}
	return s
}

// missingNames lists every wanted name absent from available.
func missingNames(available, wanted []string) []string {
	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[trimString(name)] = struct{}{}
	}
	var missing []string
	for _, name := range wanted {
		if _, ok := have[trimString(name)]; !ok {
			missing = append(missing, trimString(name))
		}
	}
	return missing
}

// mergeNames appends the names of extra not already in base.
func mergeNames(base []string, extra ...string) []string {
	out := append([]string(nil), base...)
	for _, name := range extra {
		found := false
		for _, b := range out {
			if trimString(b) == trimString(name) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, name)
		}
	}
	return out
}

// sliceUint32 reinterprets a SPIR-V byte blob as words. len(data) must be a multiple of 4.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	words := make([]uint32, len(data)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*4), data)
	return words
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bytesOf views a value as its raw memory for uploads and push constants.
func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// sliceBytes views a slice of plain values as bytes for upload.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
