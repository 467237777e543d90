// Package resume loads the base LaTeX resume and applies refiner edits to it.
package resume

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MainFile is the entry point of the resume sources.
const MainFile = "cv.tex"

// IncludeDir holds the optional fragments referenced from MainFile.
const IncludeDir = "includes"

// ErrMissingMain is returned when the resume directory has no cv.tex.
var ErrMissingMain = errors.New("missing resume main file " + MainFile)

// Document is the current resume: the main file plus include fragments keyed
// by file name (e.g. "experience.tex").
type Document struct {
	Main     string
	Includes map[string]string
}

// LoadDocument reads cv.tex and every includes/*.tex under dir.
// The includes directory is optional.
func LoadDocument(dir string) (*Document, error) {
	main, err := os.ReadFile(filepath.Join(dir, MainFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrMissingMain, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", MainFile, err)
	}

	doc := &Document{Main: normalizeLineEndings(string(main)), Includes: make(map[string]string)}

	entries, err := os.ReadDir(filepath.Join(dir, IncludeDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read includes: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tex") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, IncludeDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read include %s: %w", entry.Name(), err)
		}
		doc.Includes[entry.Name()] = normalizeLineEndings(string(content))
	}
	return doc, nil
}

// IncludeNames returns include file names in sorted order.
func (d *Document) IncludeNames() []string {
	names := make([]string, 0, len(d.Includes))
	for name := range d.Includes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	out := &Document{Main: d.Main, Includes: make(map[string]string, len(d.Includes))}
	for k, v := range d.Includes {
		out.Includes[k] = v
	}
	return out
}

// Render formats the document for a prompt.
func (d *Document) Render() string {
	var sb strings.Builder
	sb.WriteString("Main Resume (cv.tex):\n")
	sb.WriteString(strings.TrimSpace(d.Main))
	sb.WriteString("\n\nIncludes:\n")
	for i, name := range d.IncludeNames() {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("--- %s ---\n%s", name, strings.TrimSpace(d.Includes[name])))
	}
	return sb.String()
}

var inputDirective = regexp.MustCompile(`\\(?:input|include)\{([^}]+)\}`)

// Flatten inlines \input and \include directives that reference known includes,
// producing a single compilable source. Unknown references are left in place.
func (d *Document) Flatten() string {
	return inputDirective.ReplaceAllStringFunc(d.Main, func(m string) string {
		ref := inputDirective.FindStringSubmatch(m)[1]
		name := path.Base(strings.TrimSpace(ref))
		if !strings.HasSuffix(name, ".tex") {
			name += ".tex"
		}
		if content, ok := d.Includes[name]; ok {
			return strings.TrimRight(content, "\n")
		}
		return m
	})
}

// resolveTarget maps a refiner target_file to the main file ("") or an include name.
func (d *Document) resolveTarget(target string) (string, bool) {
	t := strings.TrimSpace(strings.ReplaceAll(target, "\\", "/"))
	t = strings.TrimPrefix(t, "./")
	t = strings.TrimPrefix(t, "resume/")
	if t == MainFile {
		return "", true
	}
	name := strings.TrimPrefix(t, IncludeDir+"/")
	if strings.Contains(name, "/") {
		return "", false
	}
	if _, ok := d.Includes[name]; ok {
		return name, true
	}
	return "", false
}

func (d *Document) file(name string) string {
	if name == "" {
		return d.Main
	}
	return d.Includes[name]
}

func (d *Document) setFile(name, content string) {
	if name == "" {
		d.Main = content
		return
	}
	d.Includes[name] = content
}

func normalizeLineEndings(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
