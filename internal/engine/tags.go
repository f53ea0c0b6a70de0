package engine

import "regexp"

// Tag names start with a word character and may contain hyphens, so
// "#mood-good" is one tag.
var tagPattern = regexp.MustCompile(`#(\w[\w-]*)`)

// ExtractTags scans content for #tag tokens and returns the tag names in
// order of appearance. Repeats are kept; the UI decides how to display
// them.
func ExtractTags(content string) []string {
	matches := tagPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}
