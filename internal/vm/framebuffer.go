package vm

// framebuffer is the 64x32 monochrome screen, row-major.
type framebuffer [ScreenWidth * ScreenHeight]bool

func (f *framebuffer) clear() {
	*f = framebuffer{}
}

func (f *framebuffer) lit(x, y int) bool {
	if !onScreen(x, y) {
		return false
	}

	return f[y*ScreenWidth+x]
}

// toggle flips the pixel at (x, y) and returns its new state and whether a lit
// pixel was turned off. The caller must pass on-screen coordinates.
func (f *framebuffer) toggle(x, y int) (lit bool, collision bool) {
	i := y*ScreenWidth + x
	collision = f[i]
	f[i] = !f[i]
	return f[i], collision
}

func onScreen(x, y int) bool {
	return x >= 0 && x < ScreenWidth && y >= 0 && y < ScreenHeight
}

// spriteColumn maps a sprite column to a screen column. Columns past the right
// edge wrap once to the left edge; anything still off-screen is reported as
// not visible.
func spriteColumn(x int) (int, bool) {
	if x >= ScreenWidth {
		x -= ScreenWidth
	}

	return x, x < ScreenWidth
}
