package boundary

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var iso3Pattern = regexp.MustCompile(`[A-Z]{3}`)

// Feature tags consulted, in order, when the file name carries no usable
// country code.
var nameTags = []string{"official_name:en", "int_name", "name:en", "official_name", "name"}

// Words that make a country name read better with a leading article.
var articleWords = []string{"Commonwealth", "Democratic", "Duchy", "Federation", "Holy", "Kingdom", "Principality", "Republic", "State of", "Union", "United"}

// DisplayName returns a human-readable name for a boundary. It looks for an
// ISO 3166-1 alpha-3 code in the file name first, then the given feature
// tags, and falls back to the file name itself.
func DisplayName(fileName string, tags map[string]string) string {
	name := ""
	code := iso3Pattern.FindString(fileName)
	if code == "" {
		code = tags["ISO3166-1:alpha3"]
	}
	if code != "" {
		if region, err := language.ParseRegion(code); err == nil {
			name = display.English.Regions().Name(region)
		}
	}
	if strings.Contains(name, ",") {
		name = ""
	}
	if name == "" {
		for _, key := range nameTags {
			if v := strings.TrimSpace(tags[key]); v != "" {
				name = v
				break
			}
		}
	}
	if name == "" {
		return fileName
	}
	return withArticle(name)
}

func withArticle(name string) string {
	// Skip the first letter, "the" may be capitalized or not.
	if len(name) > 1 && strings.HasPrefix(name[1:], "he ") {
		return name
	}
	for _, w := range articleWords {
		if strings.Contains(name, w) {
			return "The " + name
		}
	}
	return name
}
