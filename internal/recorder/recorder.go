// Package recorder turns the screenshots captured during a task into an animated GIF.
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"
)

// ErrEmpty is returned when saving a recording without frames
var ErrEmpty = errors.New("recording has no frames")

// Options configures GIF generation
type Options struct {
	// FPS is the playback rate; each captured screenshot is one frame
	FPS       int
	MaxWidth  uint
	MaxFrames int
}

// Recorder collects frames. It is safe for concurrent use.
type Recorder struct {
	opts Options

	mu     sync.Mutex
	frames []image.Image
}

// New creates an empty Recorder
func New(opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}
	return &Recorder{opts: opts}
}

// Add decodes a PNG screenshot and appends it as a frame
func (r *Recorder) Add(shot []byte) error {
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	r.AddImage(img)
	return nil
}

// AddImage appends a frame, dropping the oldest once MaxFrames is reached
func (r *Recorder) AddImage(img image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, img)
	if r.opts.MaxFrames > 0 && len(r.frames) > r.opts.MaxFrames {
		r.frames = r.frames[len(r.frames)-r.opts.MaxFrames:]
	}
}

// Len returns the number of frames recorded
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Save writes the recording to path and returns the file size
func (r *Recorder) Save(path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := r.Encode(f); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Encode writes the recording as an animated GIF
func (r *Recorder) Encode(w io.Writer) error {
	r.mu.Lock()
	frames := append([]image.Image{}, r.frames...)
	r.mu.Unlock()

	if len(frames) == 0 {
		return ErrEmpty
	}

	// Delay is in 100ths of a second
	delay := 100 / r.opts.FPS

	bounds := frames[0].Bounds()
	width := r.opts.MaxWidth
	if uint(bounds.Dx()) < width {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames[0])
	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})

		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	return gif.EncodeAll(w, g)
}

// generatePalette builds a 256 colour palette from the most frequent colours of img
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	// Sample every 4th pixel
	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, colorCount{c, n})
	}
	sort.Slice(colors, func(i, j int) bool { return colors[i].count > colors[j].count })

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		palette = append(palette, colors[i].c)
	}

	// Pad with greys
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
