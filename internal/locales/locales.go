// Package locales defines the set of languages the marketing site publishes
// in and validates incoming locale codes against it.
package locales

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Default is the base locale content is authored in.
const Default = "en"

// supported lists every platform locale; the site serves exactly these.
var supported = []language.Tag{
	language.English, // en
	language.German,  // de
	language.French,  // fr
	language.Spanish, // es
	language.Italian, // it
	language.Russian, // ru
	language.Arabic,  // ar
	language.Turkish, // tr
}

var matcher = language.NewMatcher(supported)

// All returns the supported locale codes in priority order.
func All() []string {
	out := make([]string, len(supported))
	for i, t := range supported {
		out[i] = t.String()
	}
	return out
}

// Normalize parses code and maps it onto the supported set, so "en-US" and
// "EN" both come back as "en". Unsupported languages are rejected rather
// than silently matched to the default.
func Normalize(code string) (string, error) {
	if code == "" {
		return Default, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", code, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("invalid locale %q", code)
	}
	for _, t := range supported {
		b, _ := t.Base()
		if b == base {
			_, idx, _ := matcher.Match(tag)
			return supported[idx].String(), nil
		}
	}
	return "", fmt.Errorf("unsupported locale %q, supported: %s", code, strings.Join(All(), ", "))
}

// Supported reports whether code maps onto a platform locale.
func Supported(code string) bool {
	_, err := Normalize(code)
	return err == nil
}
