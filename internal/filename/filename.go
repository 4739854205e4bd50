// Package filename expands capture filename patterns such as
// ${capturetime:d"yyyy-MM-dd HH_mm_ss"}-${title}.
//
// Expansion is a pure function of the pattern, the capture details and the
// environment snapshot passed in. Nothing here touches the filesystem.
package filename

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// maxLength caps the base name so it stays well below filesystem limits.
const maxLength = 200

// fallbackName is used when a pattern expands to nothing usable.
const fallbackName = "capture"

var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Env holds the machine and user values patterns may refer to. The host
// captures it once at construction.
type Env struct {
	User     string
	Domain   string
	Hostname string
}

// Expand replaces every ${variable[:modifier]} in pattern. Values are made
// safe for use in a filename; literal pattern text is kept as written.
// Unknown variables expand to the empty string.
func Expand(pattern string, details *plugin.CaptureDetails, env Env) string {
	if details == nil {
		details = &plugin.CaptureDetails{}
	}
	return variablePattern.ReplaceAllStringFunc(pattern, func(m string) string {
		name, modifier, _ := strings.Cut(variablePattern.FindStringSubmatch(m)[1], ":")
		return Sanitize(resolve(strings.ToLower(strings.TrimSpace(name)), modifier, details, env))
	})
}

// Filename returns the file name for a capture: the expanded pattern,
// sanitised as a whole, plus the format's extension.
func Filename(pattern string, format plugin.OutputFormat, details *plugin.CaptureDetails, env Env) string {
	base := Sanitize(Expand(pattern, details, env))
	if base == "" {
		base = fallbackName
	}
	return base + format.Extension()
}

func resolve(name, modifier string, details *plugin.CaptureDetails, env Env) string {
	switch name {
	case "capturetime":
		if details.DateTime.IsZero() {
			return ""
		}
		layout := DefaultDateLayout
		if strings.HasPrefix(modifier, "d") {
			layout = strings.Trim(modifier[1:], `"`)
		}
		return FormatDate(details.DateTime, layout)
	case "title":
		return details.Title
	case "id":
		return details.ID
	case "user":
		return env.User
	case "domain":
		return env.Domain
	case "hostname":
		return env.Hostname
	default:
		return details.MetaData[name]
	}
}

// Sanitize replaces characters that are not allowed in file names with an
// underscore, trims surrounding spaces and dots and caps the length.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isIllegal(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), " .")
	for len(out) > maxLength {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	return out
}

func isIllegal(r rune) bool {
	if unicode.IsControl(r) {
		return true
	}
	return strings.ContainsRune(`<>:"/\|?*`, r)
}
