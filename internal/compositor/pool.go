package compositor

import (
	"image"
	"sync"
)

// canvasPool reuses RGBA canvases across generate attempts of the same
// size, which is the common case while a user tweaks crop boundaries.
type canvasPool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.Mutex
}

var canvases = &canvasPool{pools: make(map[image.Rectangle]*sync.Pool)}

func (p *canvasPool) get(rect image.Rectangle) *image.RGBA {
	p.mu.Lock()
	pool, ok := p.pools[rect]
	if !ok {
		pool = &sync.Pool{
			New: func() any {
				return image.NewRGBA(rect)
			},
		}
		p.pools[rect] = pool
	}
	p.mu.Unlock()

	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

func (p *canvasPool) put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.Lock()
	pool, ok := p.pools[img.Rect]
	p.mu.Unlock()
	if ok {
		pool.Put(img)
	}
}
