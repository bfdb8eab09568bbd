package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterBuilder helps construct complex ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter. A negative dimension keeps the aspect ratio,
// e.g. Scale(1280, -2).
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width == 0 || height == 0 || (width < 0 && height < 0) {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// TextOptions configures a drawtext overlay.
type TextOptions struct {
	Text     string
	FontSize int
	Color    string
	// From and To bound the seconds during which the text is shown. Both zero
	// shows it for the whole stream.
	From float64
	To   float64
}

// DrawText adds centred text, optionally limited to a time range.
func (fb *FilterBuilder) DrawText(opts TextOptions) *FilterBuilder {
	if opts.Text == "" {
		return fb
	}
	size := opts.FontSize
	if size <= 0 {
		size = 72
	}
	color := opts.Color
	if color == "" {
		color = "white"
	}

	filter := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:borderw=3:bordercolor=black:x=(w-text_w)/2:y=(h-text_h)/2",
		escapeText(opts.Text), size, color)
	if opts.To > opts.From {
		filter += fmt.Sprintf(":enable='between(t,%s,%s)'",
			strconv.FormatFloat(opts.From, 'f', 3, 64), strconv.FormatFloat(opts.To, 'f', 3, 64))
	}
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

var textEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)

// escapeText escapes characters drawtext treats specially.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}
