package content

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinDescriptionLength is the shortest cleaned description accepted as real prose
	MinDescriptionLength = 30

	// MaxArtifactRatio is the highest artifact-match density tolerated per character
	MaxArtifactRatio = 0.15
)

var (
	artifactRe = regexp.MustCompile(`(?i)src=|href=|<[^>]*|img |style=|class=`)

	boilerplateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(read more|continue reading|click here)`),
		regexp.MustCompile(`(?i)^(the post|this article|this story)`),
		regexp.MustCompile(`^[\s.…\-–—_|]*$`),
	}
)

// IsValidDescription reports whether a description is long enough, mostly free of markup
// artifacts, and not a boilerplate stub.
func IsValidDescription(description string) bool {
	cleaned := Normalize(description)
	length := utf8.RuneCountInString(cleaned)
	if length < MinDescriptionLength {
		return false
	}

	if ArtifactRatio(cleaned) > MaxArtifactRatio {
		return false
	}

	for _, re := range boilerplateRes {
		if re.MatchString(cleaned) {
			return false
		}
	}
	return true
}

// ArtifactRatio is the number of markup-artifact matches per character of s
func ArtifactRatio(s string) float64 {
	length := utf8.RuneCountInString(s)
	if length == 0 {
		return 0
	}
	matches := artifactRe.FindAllStringIndex(s, -1)
	return float64(len(matches)) / float64(length)
}

// IsBoilerplate reports whether s starts like a feed stub ("Read more", "The post ...")
func IsBoilerplate(s string) bool {
	s = strings.TrimSpace(s)
	for _, re := range boilerplateRes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
