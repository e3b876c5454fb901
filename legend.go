package prestods

import (
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/grafana/regexp"
)

// legendPlaceholder matches {{ name }}; the name is trimmed.
var legendPlaceholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// RenderLegend resolves every {{name}} placeholder in pattern against labels.
// Missing labels render as the empty string.
func RenderLegend(pattern string, labels data.Labels) string {
	return legendPlaceholder.ReplaceAllStringFunc(pattern, func(match string) string {
		name := legendPlaceholder.FindStringSubmatch(match)[1]
		return labels[name]
	})
}

// legendFor returns the legend pattern of the first time series target
// matching refID, or "" when there is none.
func legendFor(targets []Query, refID string) string {
	for _, t := range targets {
		if t.RefID == refID && t.Format == FormatTimeSeries && t.LegendFormat != "" {
			return t.LegendFormat
		}
	}
	return ""
}

// AnnotateFrames returns copies of frames whose fields carry a display name
// rendered from the matching target's legend format. Frames without a
// matching target are returned as-is. The input frames are not modified.
func AnnotateFrames(frames data.Frames, targets []Query, vars ScopedVars, templates TemplateService) data.Frames {
	if len(frames) == 0 {
		return frames
	}
	out := make(data.Frames, len(frames))
	for i, frame := range frames {
		out[i] = frame
		if frame == nil {
			continue
		}
		legend := legendFor(targets, frame.RefID)
		if legend == "" {
			continue
		}
		if templates != nil {
			legend = templates.Replace(legend, vars)
		}
		out[i] = withDisplayNames(frame, legend)
	}
	return out
}

// AnnotateResponse applies AnnotateFrames to every response in resp and
// returns a new envelope with the same keys.
func AnnotateResponse(resp *backend.QueryDataResponse, targets []Query, vars ScopedVars, templates TemplateService) *backend.QueryDataResponse {
	if resp == nil {
		return nil
	}
	out := backend.NewQueryDataResponse()
	for refID, dr := range resp.Responses {
		dr.Frames = AnnotateFrames(dr.Frames, targets, vars, templates)
		out.Responses[refID] = dr
	}
	return out
}

func withDisplayNames(frame *data.Frame, legend string) *data.Frame {
	annotated := *frame
	annotated.Fields = make([]*data.Field, len(frame.Fields))
	for i, field := range frame.Fields {
		annotated.Fields[i] = withDisplayName(field, RenderLegend(legend, field.Labels))
	}
	return &annotated
}

// withDisplayName shallow-copies field with a fresh config. Values and labels
// are shared with the original, which is never written to.
func withDisplayName(field *data.Field, name string) *data.Field {
	f := *field
	cfg := data.FieldConfig{}
	if field.Config != nil {
		cfg = *field.Config
	}
	cfg.DisplayNameFromDS = name
	f.Config = &cfg
	return &f
}
