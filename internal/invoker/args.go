package invoker

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	paramRefPattern    = regexp.MustCompile(`\{param:([A-Za-z0-9_-]+)\}`)
	placeholderPattern = regexp.MustCompile(`\{(input|output|outdir|scripts|param:[A-Za-z0-9_-]+)\}`)
)

// names of the {param:...} placeholders used in s
func paramRefs(s string) []string {
	matches := paramRefPattern.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		names = append(names, m[1])
	}

	return names
}

// values substituted into argument templates
type placeholders struct {
	input   string
	output  string
	outdir  string
	scripts string
	params  map[string]string
}

// substitutes every placeholder in one pass, so substituted values are never expanded again
func (p placeholders) expand(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		name := token[1 : len(token)-1]

		switch name {
		case "input":
			return p.input
		case "output":
			return p.output
		case "outdir":
			return p.outdir
		case "scripts":
			return p.scripts
		}

		return p.params[strings.TrimPrefix(name, "param:")]
	})
}

// builds the argument vector. each template element stays one argument,
// whatever the substituted values contain
func (p placeholders) argv(templates []string) []string {
	args := make([]string, len(templates))

	for i, t := range templates {
		args[i] = p.expand(t)
	}

	return args
}

// lowercased extension of the base name, "" when absent or unsafe
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))

	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}

	return ext
}
