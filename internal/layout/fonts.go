package layout

import "strings"

// The reconstructor can only embed the standard 14 PDF fonts. Unknown
// families map through this table onto one of the three base families;
// weight and style then select the concrete face.

// baseFamilies maps lowercase family name fragments to a standard base family.
var baseFamilies = map[string]string{
	"helvetica": "Helvetica",
	"arial":     "Helvetica",
	"verdana":   "Helvetica",
	"tahoma":    "Helvetica",
	"calibri":   "Helvetica",
	"roboto":    "Helvetica",
	"times":     "Times",
	"georgia":   "Times",
	"garamond":  "Times",
	"serif":     "Times",
	"courier":   "Courier",
	"consolas":  "Courier",
	"mono":      "Courier",
	"symbol":    "Symbol",
	"dingbat":   "ZapfDingbats",
	"zapf":      "ZapfDingbats",
}

// NormalizeFamily maps an arbitrary font family name onto a standard base
// family. The second return value reports whether a fallback was taken.
func NormalizeFamily(family string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(family))
	if f == "" {
		return DefaultFontFamily, true
	}
	for fragment, base := range baseFamilies {
		if strings.Contains(f, fragment) {
			return base, !isStandardName(f, base)
		}
	}
	return DefaultFontFamily, true
}

// isStandardName reports whether family already names the base family or one
// of its standard-14 faces, so no fallback event should be recorded.
func isStandardName(lowerFamily, base string) bool {
	lowerBase := strings.ToLower(base)
	if lowerFamily == lowerBase {
		return true
	}
	if base == "Times" && lowerFamily == "times-roman" {
		return true
	}
	return strings.HasPrefix(lowerFamily, lowerBase+"-")
}

// FaceName resolves a FontInfo to a concrete standard-14 face name, applying
// the weight/style fallback table.
func FaceName(font FontInfo) string {
	base, _ := NormalizeFamily(font.Family)
	bold := font.Weight == WeightBold
	italic := font.Style == StyleItalic

	switch base {
	case "Times":
		switch {
		case bold && italic:
			return "Times-BoldItalic"
		case bold:
			return "Times-Bold"
		case italic:
			return "Times-Italic"
		default:
			return "Times-Roman"
		}
	case "Courier":
		switch {
		case bold && italic:
			return "Courier-BoldOblique"
		case bold:
			return "Courier-Bold"
		case italic:
			return "Courier-Oblique"
		default:
			return "Courier"
		}
	case "Symbol":
		return "Symbol"
	case "ZapfDingbats":
		return "ZapfDingbats"
	default:
		switch {
		case bold && italic:
			return "Helvetica-BoldOblique"
		case bold:
			return "Helvetica-Bold"
		case italic:
			return "Helvetica-Oblique"
		default:
			return "Helvetica"
		}
	}
}
