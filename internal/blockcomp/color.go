package blockcomp

import "encoding/binary"

// pack565 quantizes an RGB triple to 5:6:5.
func pack565(r, g, b byte) uint16 {
	r5 := (uint16(r)*31 + 127) / 255
	g6 := (uint16(g)*63 + 127) / 255
	b5 := (uint16(b)*31 + 127) / 255
	return r5<<11 | g6<<5 | b5
}

// unpack565 expands 5:6:5 to 8 bits per channel by bit replication.
func unpack565(c uint16) [3]int {
	r5 := int(c>>11) & 0x1f
	g6 := int(c>>5) & 0x3f
	b5 := int(c) & 0x1f
	return [3]int{r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2}
}

// colorPalette returns the four RGB palette entries for endpoints c0, c1.
// In three-color mode entry 3 is transparent black.
func colorPalette(c0, c1 uint16, allowThreeColor bool) (pal [4][4]int) {
	e0, e1 := unpack565(c0), unpack565(c1)
	pal[0] = [4]int{e0[0], e0[1], e0[2], 255}
	pal[1] = [4]int{e1[0], e1[1], e1[2], 255}
	if c0 > c1 || !allowThreeColor {
		for i := 0; i < 3; i++ {
			pal[2][i] = (2*e0[i] + e1[i]) / 3
			pal[3][i] = (e0[i] + 2*e1[i]) / 3
		}
		pal[2][3], pal[3][3] = 255, 255
		return pal
	}
	for i := 0; i < 3; i++ {
		pal[2][i] = (e0[i] + e1[i]) / 2
	}
	pal[2][3] = 255
	pal[3] = [4]int{0, 0, 0, 0}
	return pal
}

// encodeColorBlock writes an 8-byte BC1 color block. Endpoints are the
// per-channel bounding box corners; the block is always four-color mode.
func encodeColorBlock(dst []byte, block *[16][4]byte) {
	lo := [3]byte{255, 255, 255}
	hi := [3]byte{0, 0, 0}
	for i := range block {
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], block[i][c])
			hi[c] = max(hi[c], block[i][c])
		}
	}

	c0 := pack565(hi[0], hi[1], hi[2])
	c1 := pack565(lo[0], lo[1], lo[2])
	if c0 < c1 {
		c0, c1 = c1, c0
	}

	binary.LittleEndian.PutUint16(dst[0:2], c0)
	binary.LittleEndian.PutUint16(dst[2:4], c1)

	var indices uint32
	if c0 != c1 {
		pal := colorPalette(c0, c1, false)
		for i := range block {
			best, bestDist := 0, 1<<30
			for p := 0; p < 4; p++ {
				d := 0
				for c := 0; c < 3; c++ {
					v := int(block[i][c]) - pal[p][c]
					d += v * v
				}
				if d < bestDist {
					best, bestDist = p, d
				}
			}
			indices |= uint32(best) << (2 * i)
		}
	}
	binary.LittleEndian.PutUint32(dst[4:8], indices)
}

// decodeColorBlock expands an 8-byte color block into RGBA. BC3 color
// blocks always use four-color mode.
func decodeColorBlock(block *[16][4]byte, src []byte, allowThreeColor bool) {
	c0 := binary.LittleEndian.Uint16(src[0:2])
	c1 := binary.LittleEndian.Uint16(src[2:4])
	indices := binary.LittleEndian.Uint32(src[4:8])
	pal := colorPalette(c0, c1, allowThreeColor)
	for i := range block {
		p := pal[(indices>>(2*i))&3]
		block[i] = [4]byte{byte(p[0]), byte(p[1]), byte(p[2]), byte(p[3])}
	}
}
