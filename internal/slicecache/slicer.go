package slicecache

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/vtex/internal/indirection"
)

// Slicer builds the mip chain of a source image and writes every slice of
// every paged mip level into a cache folder.
type Slicer struct {
	Params Params

	// Concurrency bounds the number of slices encoded at once.
	// Zero means GOMAXPROCS.
	Concurrency int

	// Logger receives progress messages. Nil disables logging.
	Logger *slog.Logger
}

// Slice writes all slices of img into dir followed by info.txt. The source
// extent must be a multiple of the page size in both dimensions.
func (s *Slicer) Slice(ctx context.Context, img image.Image, dir string) (Info, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	page := s.Params.PageSize
	if page <= 0 || w < page || h < page || w%page != 0 || h%page != 0 {
		return Info{}, fmt.Errorf("%w: %dx%d, page %d", ErrMisaligned, w, h, page)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("slicecache: create folder: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)

	level := toNRGBA(img)
	mips := indirection.MipCount(w, h, page)
	for mip := range mips {
		if mip > 0 {
			level = downsample(level, indirection.MipExtent(w, mip), indirection.MipExtent(h, mip))
		}
		pix, mw, mh := level.Pix, level.Rect.Dx(), level.Rect.Dy()
		cols := indirection.SlicesPerSide(mw, page)
		rows := indirection.SlicesPerSide(mh, page)
		for sy := range rows {
			for sx := range cols {
				key := Key{Folder: dir, Mip: mip, SliceX: sx, SliceY: sy}
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					file, err := EncodeSlice(pix, mw, mh, key.SliceX, key.SliceY, s.Params)
					if err != nil {
						return err
					}
					return writeFileAtomic(key.Path(), file)
				})
			}
		}
		logger.Debug("slicecache: mip queued", "dir", dir, "mip", mip, "extent", [2]int{mw, mh}, "slices", cols*rows)
	}
	if err := g.Wait(); err != nil {
		return Info{}, err
	}

	info := Info{Width: w, Height: h}
	if err := WriteInfo(dir, info); err != nil {
		return Info{}, err
	}
	logger.Info("slicecache: folder written", "dir", dir, "width", w, "height", h,
		"mips", mips, "slices", indirection.SliceCount(w, h, page))
	return info, nil
}

// toNRGBA returns img as a tightly packed NRGBA image with origin (0,0).
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// downsample filters src down to w x h.
func downsample(src *image.NRGBA, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
