package color

// PackRGBA8 packs a float color into a 32-bit value with red in the low
// byte and alpha in the high byte, the memory order of an RGBA8 texel on a
// little-endian host.
func PackRGBA8(c ColorF32) uint32 {
	u := F32ToU8(c)
	return PackU8(u)
}

// PackU8 packs an 8-bit color, red in the low byte.
func PackU8(u ColorU8) uint32 {
	return uint32(u.A)<<24 | uint32(u.B)<<16 | uint32(u.G)<<8 | uint32(u.R)
}

// Unpack is the inverse of PackU8.
func Unpack(p uint32) ColorU8 {
	return ColorU8{
		R: uint8(p),
		G: uint8(p >> 8),
		B: uint8(p >> 16),
		A: uint8(p >> 24),
	}
}

// Darken scales the RGB channels of a packed color by factor and forces
// the result opaque.
func Darken(p uint32, factor float32) uint32 {
	c := U8ToF32(Unpack(p))
	c.R *= factor
	c.G *= factor
	c.B *= factor
	c.A = 1
	return PackRGBA8(c)
}

// Bytes writes packed pixels into an RGBA8 byte slice, four bytes per pixel.
// dst must hold at least 4*len(src) bytes.
func Bytes(dst []byte, src []uint32) {
	for i, p := range src {
		o := i * 4
		dst[o] = uint8(p)
		dst[o+1] = uint8(p >> 8)
		dst[o+2] = uint8(p >> 16)
		dst[o+3] = uint8(p >> 24)
	}
}
