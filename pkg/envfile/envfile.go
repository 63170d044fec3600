package envfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// pairPattern matches a KEY=value line. The value keeps its original
// quoting; surrounding whitespace on the key side is tolerated.
var pairPattern = regexp.MustCompile(`^(\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*=\s*)(.*)$`)

// line is one physical line of the file. Comment and blank lines are kept
// verbatim so a load/save round trip is byte-identical.
type line struct {
	raw   string // Full original line, kept current on mutation
	key   string
	value string
	sep   string // The "=" with its surrounding whitespace
	pair  bool
}

// File is an ordered KEY=value configuration file. Key order follows the
// file; mutations preserve the original line formatting where possible.
type File struct {
	lines []line
	index map[string]int
}

// New returns an empty File.
func New() *File {
	return &File{index: make(map[string]int)}
}

// Parse builds a File from raw env-file content.
func Parse(data []byte) *File {
	f := New()
	if len(data) == 0 {
		return f
	}
	content := strings.TrimSuffix(string(data), "\n")
	for _, raw := range strings.Split(content, "\n") {
		f.appendRaw(raw)
	}
	return f
}

// Load reads and parses the env file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return Parse(data), nil
}

func (f *File) appendRaw(raw string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		f.lines = append(f.lines, line{raw: raw})
		return
	}
	m := pairPattern.FindStringSubmatch(raw)
	if m == nil {
		f.lines = append(f.lines, line{raw: raw})
		return
	}
	key := m[2]
	if _, dup := f.index[key]; dup {
		// Later occurrences shadow earlier ones in dotenv semantics;
		// keep the line but only index the first so round trips stay
		// byte-identical.
		f.lines = append(f.lines, line{raw: raw, key: key, value: m[4], sep: m[3], pair: true})
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{raw: raw, key: key, value: m[4], sep: m[3], pair: true})
}

// Get returns the value for key as written, including any quoting.
func (f *File) Get(key string) (string, bool) {
	i, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.lines[i].value, true
}

// Has reports whether key is present.
func (f *File) Has(key string) bool {
	_, ok := f.index[key]
	return ok
}

// Set updates key in place, or appends a new KEY=value line. Updating a key
// to its current value leaves the line untouched.
func (f *File) Set(key, value string) {
	if i, ok := f.index[key]; ok {
		l := &f.lines[i]
		if l.value == value {
			return
		}
		prefix := l.key
		if m := pairPattern.FindStringSubmatch(l.raw); m != nil {
			prefix = m[1] + m[2]
		}
		l.value = value
		l.raw = prefix + l.sep + value
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{
		raw:   key + "=" + value,
		key:   key,
		value: value,
		sep:   "=",
		pair:  true,
	})
}

// Keys returns the keys in file order, first occurrence wins.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	seen := make(map[string]bool, len(f.index))
	for _, l := range f.lines {
		if l.pair && !seen[l.key] {
			seen[l.key] = true
			keys = append(keys, l.key)
		}
	}
	return keys
}

// AppendComment adds a comment line at the end of the file.
func (f *File) AppendComment(text string) {
	f.lines = append(f.lines, line{raw: "# " + text})
}

// Bytes renders the file. Output ends with a trailing newline unless the
// file is empty.
func (f *File) Bytes() []byte {
	if len(f.lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range f.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Save writes the file to path with the given permissions.
func (f *File) Save(path string, perm os.FileMode) error {
	if err := os.WriteFile(path, f.Bytes(), perm); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}

// Unquote strips one layer of matching single or double quotes from a
// value, as schema-version markers may be written either way.
func Unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
