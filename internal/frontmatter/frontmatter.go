// Package frontmatter implements the fenced-metadata-block-plus-body
// file format used throughout the fabric: a leading YAML block
// delimited by "---" lines, followed directly by free-form body text. It is implemented once here and shared by the mailbox
// store and the manifest-adjacent watcher code, per the spec's design
// note that this format is ubiquitous enough to deserve one utility.
package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alcionai/clues"
	"gopkg.in/yaml.v3"
)

var fenceRE = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n?(.*)\z`)

// ErrNoFrontmatter indicates the input has no leading fenced block.
var ErrNoFrontmatter = clues.New("no frontmatter block found")

// Parse splits raw into its metadata map and body text. If raw has no
// leading fenced block, ErrNoFrontmatter is returned and body is the
// entire input so that callers may choose to fall back gracefully.
func Parse(raw []byte) (map[string]any, string, error) {
	m := fenceRE.FindSubmatch(raw)
	if m == nil {
		return nil, string(raw), ErrNoFrontmatter
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(m[1], &meta); err != nil {
		return nil, "", clues.Wrap(err, "parsing frontmatter yaml")
	}

	return meta, string(m[2]), nil
}

// Write serializes metadata as a fenced YAML block followed by body.
func Write(metadata map[string]any, body string) ([]byte, error) {
	yb, err := yaml.Marshal(metadata)
	if err != nil {
		return nil, clues.Wrap(err, "marshaling frontmatter yaml")
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yb)
	buf.WriteString("---\n")
	buf.WriteString(body)

	return buf.Bytes(), nil
}

// StringField reads a required dotted-path string field (e.g.
// "content.text") out of a parsed metadata map, returning ok=false if
// any segment is missing or not the expected type.
func StringField(metadata map[string]any, dottedPath string) (string, bool) {
	cur := any(metadata)

	for _, seg := range strings.Split(dottedPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}

		cur, ok = m[seg]
		if !ok {
			return "", false
		}
	}

	s, ok := cur.(string)

	return s, ok
}

// RequireFields validates that every dotted path in required is
// present in metadata, returning a single InvalidInput-style error
// naming the first missing field.
func RequireFields(metadata map[string]any, required ...string) error {
	for _, field := range required {
		if _, ok := StringField(metadata, field); !ok {
			// numeric/bool/nested fields are still "present" even though
			// StringField only yields strings; re-check presence generically.
			if !fieldPresent(metadata, field) {
				return clues.New(fmt.Sprintf("missing required frontmatter field %q", field))
			}
		}
	}

	return nil
}

func fieldPresent(metadata map[string]any, dottedPath string) bool {
	cur := any(metadata)

	for _, seg := range strings.Split(dottedPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}

		cur, ok = m[seg]
		if !ok {
			return false
		}
	}

	return true
}
