package dilaxadapter

import "strings"

// vehicleLabelWidth is the combined alpha-prefix/numeric-suffix width every
// resolved label is padded to, matching the Fleet adapter's query encoding.
const vehicleLabelWidth = 14

// vehicleLabel derives a Fleet-lookup label from a Dilax device's site
// string by splitting it into alternating alpha/digit runs, taking the
// leading run as the prefix and concatenating every run after it, alpha or
// numeric, into the suffix (e.g. "AM12A34" -> prefix "AMP", suffix "12A34").
// Grounded on original_source/crates/dilax-adapter/src/handlers/processor.rs's
// vehicle_label.
func vehicleLabel(site string) (string, bool) {
	if site == "" {
		return "", false
	}

	var segments []string
	var current strings.Builder
	var currentIsDigit *bool

	for _, r := range site {
		isDigit := r >= '0' && r <= '9'
		switch {
		case currentIsDigit == nil:
			current.WriteRune(r)
			v := isDigit
			currentIsDigit = &v
		case *currentIsDigit == isDigit:
			current.WriteRune(r)
		default:
			segments = append(segments, current.String())
			current.Reset()
			current.WriteRune(r)
			v := isDigit
			currentIsDigit = &v
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	if len(segments) == 0 {
		return "", false
	}

	alpha := segments[0]
	numeric := strings.Join(segments[1:], "")
	if numeric == "" {
		return "", false
	}

	prefix := alpha
	switch alpha {
	case "AM":
		prefix = "AMP"
	case "AD":
		prefix = "ADL"
	}

	pad := vehicleLabelWidth - len(prefix) - len(numeric)
	if pad < 0 {
		pad = 0
	}
	return prefix + strings.Repeat(" ", pad) + numeric, true
}
