package transform

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/skillforge/assetengine/internal/model"
)

// PDFStamper implements Stamper with pdfcpu text watermarks.
type PDFStamper struct{}

// NewPDFStamper returns the pdfcpu-backed stamper.
func NewPDFStamper() *PDFStamper {
	return &PDFStamper{}
}

// StampFooter renders the copyright footer centered at the bottom of every
// page.
func (s *PDFStamper) StampFooter(pdf []byte, settings model.FooterSettings) ([]byte, error) {
	font := settings.FontName
	if font == "" {
		font = "Helvetica"
	}
	points := settings.Points
	if points <= 0 {
		points = 8
	}
	opacity := settings.Opacity
	if opacity <= 0 {
		opacity = 1
	}

	desc := fmt.Sprintf("fontname:%s, points:%d, pos:bc, off:0 12, scale:1 abs, rot:0, op:%.2f",
		font, points, opacity)
	return s.stamp(pdf, settings.Text, desc)
}

// StampWatermark renders the preview watermark diagonally across every page.
func (s *PDFStamper) StampWatermark(pdf []byte, text string) ([]byte, error) {
	desc := "fontname:Helvetica, points:48, pos:c, scale:0.9 rel, rot:45, op:0.3"
	return s.stamp(pdf, text, desc)
}

func (s *PDFStamper) stamp(pdf []byte, text, desc string) ([]byte, error) {
	if text == "" {
		return pdf, nil
	}

	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build watermark: %w", err)
	}

	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(pdf), &buf, nil, wm, nil); err != nil {
		return nil, fmt.Errorf("apply watermark: %w", err)
	}
	return buf.Bytes(), nil
}
