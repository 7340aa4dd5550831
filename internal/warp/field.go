package warp

// Field maps rectified-canvas coordinates to source-image coordinates. The
// mapping is stored on a coarse uniform lattice and interpolated bilinearly,
// which keeps memory bounded on large scans and makes the monotonicity
// guarantee checkable node by node.
//
// The inverse direction (rectified -> source) is deliberate: the resampler
// pulls every output pixel from the source, so the output has no holes.
type Field struct {
	Width  int // rectified canvas extent, px
	Height int
	Step   int // lattice spacing, px

	gw, gh int
	sx, sy []float64 // lattice source coordinates, row-major gw*gh
}

// newLattice allocates an uninitialized field for the given canvas.
func newLattice(width, height, step int) *Field {
	if step < 1 {
		step = 1
	}
	gw := (width-1)/step + 2
	gh := (height-1)/step + 2
	return &Field{
		Width:  width,
		Height: height,
		Step:   step,
		gw:     gw,
		gh:     gh,
		sx:     make([]float64, gw*gh),
		sy:     make([]float64, gw*gh),
	}
}

// Identity returns a field mapping every canvas coordinate to itself.
func Identity(width, height int) *Field {
	f := newLattice(width, height, 16)
	for j := 0; j < f.gh; j++ {
		for i := 0; i < f.gw; i++ {
			f.setNode(i, j, float64(i*f.Step), float64(j*f.Step))
		}
	}
	return f
}

func (f *Field) setNode(i, j int, sx, sy float64) {
	f.sx[j*f.gw+i] = sx
	f.sy[j*f.gw+i] = sy
}

func (f *Field) node(i, j int) (float64, float64) {
	return f.sx[j*f.gw+i], f.sy[j*f.gw+i]
}

// SourceCoord returns the source-image coordinate for rectified-canvas
// coordinate (x, y). Defined (by lattice extrapolation) over the whole
// canvas.
func (f *Field) SourceCoord(x, y float64) (float64, float64) {
	step := float64(f.Step)

	gx := int(x / step)
	if gx < 0 {
		gx = 0
	}
	if gx > f.gw-2 {
		gx = f.gw - 2
	}
	gy := int(y / step)
	if gy < 0 {
		gy = 0
	}
	if gy > f.gh-2 {
		gy = f.gh - 2
	}

	u := x/step - float64(gx)
	v := y/step - float64(gy)

	x00, y00 := f.node(gx, gy)
	x10, y10 := f.node(gx+1, gy)
	x01, y01 := f.node(gx, gy+1)
	x11, y11 := f.node(gx+1, gy+1)

	// a + t*(b-a) form: exact when the lattice holds an identity mapping,
	// which keeps identity-field resampling pixel-exact.
	top := x00 + u*(x10-x00)
	bot := x01 + u*(x11-x01)
	sx := top + v*(bot-top)

	topY := y00 + u*(y10-y00)
	botY := y01 + u*(y11-y01)
	sy := topY + v*(botY-topY)

	return sx, sy
}

// enforceMonotonicY clamps lattice columns so source y strictly increases
// down every column. Bilinear interpolation of monotonic nodes is monotonic,
// so the dense field cannot fold the image.
func (f *Field) enforceMonotonicY(minGap float64) {
	for i := 0; i < f.gw; i++ {
		for j := 1; j < f.gh; j++ {
			prev := f.sy[(j-1)*f.gw+i]
			idx := j*f.gw + i
			if f.sy[idx] < prev+minGap {
				f.sy[idx] = prev + minGap
			}
		}
	}
}

// MonotonicY reports whether source y increases strictly down every lattice
// column. A false result indicates a fitting bug producing folded output.
func (f *Field) MonotonicY() bool {
	for i := 0; i < f.gw; i++ {
		for j := 1; j < f.gh; j++ {
			if f.sy[j*f.gw+i] <= f.sy[(j-1)*f.gw+i] {
				return false
			}
		}
	}
	return true
}
