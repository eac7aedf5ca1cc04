package main

import (
	"fmt"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/backend/headless"
	"github.com/gogpu/vtex/internal/feedback"
	"github.com/gogpu/vtex/internal/indirection"
)

// verifyResult counts the slices streamed by verifyTexture.
type verifyResult struct {
	Slices   int
	Uploaded int
	Failed   int
}

// verifyTexture requests every slice of a texture through the manager as
// if the sampling shader had reported it, one throttled batch per frame.
// Cache misses and format mismatches count as failures.
func verifyTexture(m *vtex.Manager, a *headless.Adapter, id vtex.TextureID, frame *uint64) (verifyResult, error) {
	var res verifyResult
	tex, ok := m.Texture(id)
	if !ok {
		return res, fmt.Errorf("texture %d not registered", id)
	}

	g := indirection.Geometry{Width: tex.Width, Height: tex.Height, PageSize: m.Config().PageSize}
	var all []vtex.Request
	for mip := range g.MipCount() {
		cols, rows := g.SliceGrid(mip)
		for y := range rows {
			for x := range cols {
				all = append(all, vtex.Request{
					TextureID: uint16(id),
					Mip:       uint8(mip),
					SliceX:    uint8(x),
					SliceY:    uint8(y),
				})
			}
		}
	}
	res.Slices = len(all)

	batch := m.Config().MaxRequestsPerFrame
	for len(all) > 0 {
		n := min(batch, len(all))
		a.WriteBuffer(m.Feedback().Buffer(), 0, feedback.EncodeBuffer(all[:n]))
		all = all[n:]

		*frame++
		stats, err := m.Update(*frame)
		if err != nil {
			return res, err
		}
		res.Uploaded += stats.Uploaded
		res.Failed += stats.Rejected[vtex.RejectCacheMiss] + stats.Rejected[vtex.RejectFormatMismatch]
	}
	return res, nil
}
