// Package dashboard serves the web UI for reviewing and progressing
// compliance controls, plus the JSON API and live event stream behind it.
package dashboard

import (
	"fmt"
	"html/template"
	"strings"
	"unicode"
)

// Soft tones that read on the dark background.
var areaPalette = [...]string{
	"#7ec8e3", // sky blue
	"#a78bda", // lavender
	"#e8a0bf", // dusty rose
	"#f4b183", // peach
	"#b5d99c", // sage green
	"#8cc5b2", // mint
	"#d6c28e", // warm sand
}

// areaAvatar returns an inline SVG badge with the initials of a control
// area on a colour picked from its name. The same area always gets the
// same badge.
func areaAvatar(area string, size int) template.HTML {
	area = strings.TrimSpace(area)
	if area == "" {
		return ""
	}
	h := fnv32a(strings.ToLower(area))
	fill := areaPalette[h%uint32(len(areaPalette))]
	ring := areaPalette[(h/7+1)%uint32(len(areaPalette))]
	return template.HTML(fmt.Sprintf(
		`<svg class="avatar" width="%d" height="%d" viewBox="0 0 40 40">`+
			`<circle cx="20" cy="20" r="20" fill="%s"/>`+
			`<circle cx="20" cy="20" r="17" fill="none" stroke="%s" stroke-width="2" opacity="0.6"/>`+
			`<text x="20" y="25" text-anchor="middle" font-size="14" font-weight="700" fill="#0a0a0f">%s</text>`+
			`</svg>`,
		size, size, fill, ring, template.HTMLEscapeString(initials(area))))
}

// areaCell returns avatar + area name for table cell display.
func areaCell(area string) template.HTML {
	if area == "" {
		return ""
	}
	return template.HTML(fmt.Sprintf(
		`<span class="area-cell">%s %s</span>`,
		areaAvatar(area, 20), template.HTMLEscapeString(area)))
}

// initials takes the first letter of up to two words.
func initials(s string) string {
	var out []rune
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out = append(out, unicode.ToUpper([]rune(w)[0]))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

// fnv32a implements FNV-1a hash.
func fnv32a(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
