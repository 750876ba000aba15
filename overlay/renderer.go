package overlay

import (
	"fmt"
	"image"
	"image/color"

	"roicount/tracking"

	"gocv.io/x/gocv"
)

// Style holds the cosmetic settings for annotation. None of it affects counting.
type Style struct {
	ROIColor      color.RGBA
	ROIThickness  int
	BoxColor      color.RGBA
	BoxThickness  int
	LabelColor    color.RGBA
	LabelScale    float64
	SummaryColor  color.RGBA
	ShadowColor   color.RGBA
	SummaryScale  float64
	ShadowOffset  int
	Trails        bool
	TrailColor    color.RGBA
	SummaryMargin int // distance of the summary baseline from the left and bottom edges
}

// DefaultStyle matches the stock look: blue ROI, green boxes, white labels,
// yellow summary with a black drop shadow.
func DefaultStyle() Style {
	return Style{
		ROIColor:      color.RGBA{R: 0, G: 0, B: 255, A: 255},
		ROIThickness:  3,
		BoxColor:      color.RGBA{R: 0, G: 255, B: 0, A: 255},
		BoxThickness:  2,
		LabelColor:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		LabelScale:    0.8,
		SummaryColor:  color.RGBA{R: 255, G: 255, B: 0, A: 255},
		ShadowColor:   color.RGBA{R: 0, G: 0, B: 0, A: 255},
		SummaryScale:  1.1,
		ShadowOffset:  2,
		TrailColor:    color.RGBA{R: 0, G: 255, B: 0, A: 180},
		SummaryMargin: 30,
	}
}

// Renderer draws counting state onto frames. It keeps no state between frames.
type Renderer struct {
	style Style
}

// NewRenderer creates a renderer with the given style
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// Style returns the renderer's style
func (r *Renderer) Style() Style {
	return r.style
}

// Label formats the on-frame tag for a display id
func Label(displayID int) string {
	return fmt.Sprintf("Person %02d", displayID)
}

// SummaryText formats the counts line
func SummaryText(snap tracking.Snapshot) string {
	return fmt.Sprintf("In: %d  Out: %d  Inside: %d", snap.In, snap.Out, snap.Inside)
}

// Annotate draws the ROI, every visible track and the summary line onto img
func (r *Renderer) Annotate(img *gocv.Mat, roi tracking.Polygon, visible []tracking.VisibleTrack, snap tracking.Snapshot) {
	r.DrawROI(img, roi)

	for _, v := range visible {
		if v.DisplayID == 0 {
			continue
		}
		if r.style.Trails {
			r.DrawTrackingPath(img, v.History)
		}
		r.DrawTrack(img, v)
	}

	pos := image.Pt(r.style.SummaryMargin, img.Rows()-r.style.SummaryMargin)
	r.drawShadowText(img, SummaryText(snap), pos, r.style.SummaryScale, r.style.SummaryColor)
}

// DrawROI outlines the region of interest
func (r *Renderer) DrawROI(img *gocv.Mat, roi tracking.Polygon) {
	if roi.Empty() {
		return
	}
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{roi.ImagePoints()})
	defer pts.Close()
	gocv.Polylines(img, pts, true, r.style.ROIColor, r.style.ROIThickness)
}

// DrawTrack draws the box and display label of one track
func (r *Renderer) DrawTrack(img *gocv.Mat, v tracking.VisibleTrack) {
	rect := v.BBox.Rect()
	gocv.Rectangle(img, rect, r.style.BoxColor, r.style.BoxThickness)
	gocv.PutText(img, Label(v.DisplayID), image.Pt(rect.Min.X, rect.Min.Y-10),
		gocv.FontHersheySimplex, r.style.LabelScale, r.style.LabelColor, 2)
}

// DrawTrackingPath draws the centroid history as a polyline
func (r *Renderer) DrawTrackingPath(img *gocv.Mat, history []tracking.Point) {
	if len(history) <= 1 {
		return // Need at least 2 points for a path
	}

	for i := 1; i < len(history); i++ {
		prev := history[i-1].ImagePoint()
		curr := history[i].ImagePoint()
		gocv.Line(img, prev, curr, r.style.TrailColor, 2)
	}
	gocv.Circle(img, history[len(history)-1].ImagePoint(), 3, r.style.TrailColor, -1)
}

// drawShadowText draws a dark outline offset behind the text so it stays
// readable on bright and dark backgrounds
func (r *Renderer) drawShadowText(img *gocv.Mat, text string, pos image.Point, scale float64, c color.RGBA) {
	off := r.style.ShadowOffset
	gocv.PutTextWithParams(img, text, image.Pt(pos.X+off, pos.Y+off),
		gocv.FontHersheySimplex, scale, r.style.ShadowColor, 4, gocv.LineAA, false)
	gocv.PutTextWithParams(img, text, pos,
		gocv.FontHersheySimplex, scale, c, 2, gocv.LineAA, false)
}
