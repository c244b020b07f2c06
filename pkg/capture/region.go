package capture

// Region is the decode scan box inside the viewport.
type Region struct {
	Width  int
	Height int
}

const (
	regionWidthRatio  = 0.92
	regionHeightRatio = 0.75
	regionMinWidth    = 280
	regionMinHeight   = 180
)

// ScanRegion sizes the scan box from the live viewport: 92% of the width and
// 75% of the height, never smaller than 280x180.
func ScanRegion(viewWidth, viewHeight int) Region {
	w := int(float64(viewWidth) * regionWidthRatio)
	h := int(float64(viewHeight) * regionHeightRatio)
	if w < regionMinWidth {
		w = regionMinWidth
	}
	if h < regionMinHeight {
		h = regionMinHeight
	}
	return Region{Width: w, Height: h}
}
