// Package transform conditionally rewrites delivered PDF copies: copyright
// footer stamping and preview watermarking. The stored original is never
// touched; every transform operates on the in-memory copy produced for one
// response.
package transform

import (
	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/entitlement"
	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
)

// Dispositions for the Content-Disposition header.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// Options adjusts a single transform invocation.
type Options struct {
	// SkipFooter suppresses the footer stamp. Honored only for full access.
	SkipFooter bool
}

// Decision records which stages apply for a delivery.
type Decision struct {
	Footer      bool
	Watermark   bool
	Disposition string
}

// Stamper renders a single stage onto a PDF buffer. The pdfcpu
// implementation lives in stamper.go; tests substitute a recorder.
type Stamper interface {
	StampFooter(pdf []byte, settings model.FooterSettings) ([]byte, error)
	StampWatermark(pdf []byte, text string) ([]byte, error)
}

// Pipeline applies the document transform decision table.
type Pipeline struct {
	Stamper Stamper

	// FooterDefaults are the system-level footer settings; entity-level
	// overrides are merged on top.
	FooterDefaults model.FooterSettings
	// WatermarkText is stamped diagonally across preview deliveries.
	WatermarkText string
}

// Decide evaluates the decision table without touching any bytes.
func Decide(entity *model.Entity, level entitlement.Level, opts Options) Decision {
	d := Decision{Disposition: DispositionAttachment}

	switch level {
	case entitlement.FullAccess:
		d.Footer = entity.AddCopyrightsFooter && !opts.SkipFooter
	case entitlement.PreviewOnly:
		// Preview deliveries ignore SkipFooter: a viewer without full
		// access cannot opt out of the copyright stamp.
		d.Footer = entity.AddCopyrightsFooter
		d.Watermark = true
		d.Disposition = DispositionInline
	}
	return d
}

// Apply runs the decided stages over pdf and returns the transformed copy
// plus the decision. A stage failure degrades to the buffer from the
// previous stage (logged, non-fatal): content quality degrades, delivery
// never fails.
func (p *Pipeline) Apply(pdf []byte, entity *model.Entity, level entitlement.Level, opts Options) ([]byte, Decision) {
	decision := Decide(entity, level, opts)
	out := pdf

	if decision.Footer {
		settings := p.FooterDefaults.Merge(entity.FooterSettings)
		stamped, err := p.Stamper.StampFooter(out, settings)
		if err != nil {
			metrics.RecordTransform("footer", "degraded")
			logging.Warn("footer stamp failed, delivering without footer",
				zap.String("entity_type", entity.Type),
				zap.String("entity_id", entity.ID),
				zap.Error(err))
		} else {
			metrics.RecordTransform("footer", "applied")
			out = stamped
		}
	} else {
		metrics.RecordTransform("footer", "skipped")
	}

	if decision.Watermark {
		stamped, err := p.Stamper.StampWatermark(out, p.WatermarkText)
		if err != nil {
			metrics.RecordTransform("watermark", "degraded")
			logging.Warn("watermark failed, delivering without watermark",
				zap.String("entity_type", entity.Type),
				zap.String("entity_id", entity.ID),
				zap.Error(err))
		} else {
			metrics.RecordTransform("watermark", "applied")
			out = stamped
		}
	} else {
		metrics.RecordTransform("watermark", "skipped")
	}

	return out, decision
}
