package chunking

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/helixml/vectorizer/domain/vectorizer"
)

// ChunkVar is the template variable bound to the chunk text.
const ChunkVar = "chunk"

// Formatter renders chunks through a $-template. $chunk is the chunk text and
// $<column> is the value of that column in the source row. $$ is a literal $.
// Unknown variables are left as written.
type Formatter struct {
	template string
}

// NewFormatter creates a Formatter.
func NewFormatter(cfg vectorizer.FormattingConfig) Formatter {
	template := cfg.Template
	if template == "" {
		template = vectorizer.DefaultTemplate
	}
	return Formatter{template: template}
}

// Format renders one chunk of row.
func (f Formatter) Format(chunk string, row map[string]any) string {
	if f.template == vectorizer.DefaultTemplate {
		return chunk
	}
	return os.Expand(f.template, func(name string) string {
		switch name {
		case "$":
			return "$"
		case ChunkVar:
			return chunk
		}
		v, ok := row[name]
		if !ok {
			return "$" + name
		}
		return Text(v)
	})
}

// Text renders a decoded JSON value as template text. Null becomes empty.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
