package blockcomp

// channelPalette returns the eight interpolated values for endpoints a0, a1.
func channelPalette(a0, a1 byte) (pal [8]int) {
	pal[0], pal[1] = int(a0), int(a1)
	if a0 > a1 {
		for i := 1; i <= 6; i++ {
			pal[i+1] = ((7-i)*int(a0) + i*int(a1)) / 7
		}
		return pal
	}
	for i := 1; i <= 4; i++ {
		pal[i+1] = ((5-i)*int(a0) + i*int(a1)) / 5
	}
	pal[6], pal[7] = 0, 255
	return pal
}

// encodeChannelBlock writes an 8-byte BC4-style block for one channel of
// the block. The encoder always emits eight-value mode (a0 > a1) unless the
// channel is constant.
func encodeChannelBlock(dst []byte, block *[16][4]byte, channel int) {
	lo, hi := byte(255), byte(0)
	for i := range block {
		lo = min(lo, block[i][channel])
		hi = max(hi, block[i][channel])
	}
	dst[0], dst[1] = hi, lo

	var bits uint64
	if hi != lo {
		pal := channelPalette(hi, lo)
		for i := range block {
			v := int(block[i][channel])
			best, bestDist := 0, 1<<30
			for p := 0; p < 8; p++ {
				d := v - pal[p]
				if d < 0 {
					d = -d
				}
				if d < bestDist {
					best, bestDist = p, d
				}
			}
			bits |= uint64(best) << (3 * i)
		}
	}
	for i := 0; i < 6; i++ {
		dst[2+i] = byte(bits >> (8 * i))
	}
}

// decodeChannelBlock expands an 8-byte BC4-style block into one channel.
func decodeChannelBlock(block *[16][4]byte, src []byte, channel int) {
	pal := channelPalette(src[0], src[1])
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := range block {
		block[i][channel] = byte(pal[(bits>>(3*i))&7])
	}
}
