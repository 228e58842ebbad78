package entity

// MediaKind discriminates the two accepted input types. An image is
// treated downstream as a one-frame video.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// Frame is one sampled frame of the input media, already decoded to a
// file on the run's scratch directory.
type Frame struct {
	// Index is the position within the sampled sequence (0-based, dense).
	Index int
	// Offset is the frame number within the source the sample was taken at.
	Offset int
	// Path points at the decoded raster written by the sampler.
	Path string
	// Width and Height are the decoded extents, used for box clamping.
	Width  int
	Height int
}

// BoundingBox is one detection result in frame pixel coordinates.
// Coordinates follow the x1<x2, y1<y2 convention.
type BoundingBox struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class"`
}

// Clamp constrains the box to a width x height frame. Detectors
// occasionally return coordinates a pixel or two past the edge; crops
// must never read outside the frame.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	c := b
	if c.X1 < 0 {
		c.X1 = 0
	}
	if c.Y1 < 0 {
		c.Y1 = 0
	}
	if c.X2 > width {
		c.X2 = width
	}
	if c.Y2 > height {
		c.Y2 = height
	}
	return c
}

// Empty reports whether the box has no area after clamping.
func (b BoundingBox) Empty() bool {
	return b.X1 >= b.X2 || b.Y1 >= b.Y2
}
