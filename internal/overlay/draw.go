package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	markerColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	labelColor  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	labelFill   = color.RGBA{R: 255, G: 111, B: 0, A: 0}
)

// Draw burns the markers into frame in place.
func Draw(frame *gocv.Mat, markers []Marker) error {
	if frame == nil || frame.Empty() {
		return fmt.Errorf("draw overlay: empty frame")
	}

	for _, m := range markers {
		box := image.Rect(
			int(m.Left), int(m.Top),
			int(m.Left+m.Width), int(m.Top+m.Height),
		)
		if err := gocv.Rectangle(frame, box, markerColor, 2); err != nil {
			return fmt.Errorf("draw marker: %w", err)
		}

		if m.LabelWidth > 0 {
			strip := image.Rect(int(m.LabelLeft), int(m.LabelTop), int(m.LabelLeft+m.LabelWidth), int(m.LabelTop)+16)
			if err := gocv.Rectangle(frame, strip, labelFill, -1); err != nil {
				return fmt.Errorf("draw label background: %w", err)
			}
		}

		pt := image.Pt(int(m.LabelLeft)+2, int(m.LabelTop)+12)
		if err := gocv.PutText(frame, m.Label, pt, gocv.FontHersheySimplex, 0.4, labelColor, 1); err != nil {
			return fmt.Errorf("draw label: %w", err)
		}
	}
	return nil
}
