// Package content cleans raw feed text and judges whether a description is real prose.
package content

import (
	"regexp"
	"strings"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?(</script\s*>|$)`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?(</style\s*>|$)`)
	commentRe     = regexp.MustCompile(`(?s)<!--.*?(-->|$)`)
	imgTagRe      = regexp.MustCompile(`(?i)<img\b[^>]*>?`)
	tagRe         = regexp.MustCompile(`</?[a-zA-Z!][^<>]*>`)
	openTagRe     = regexp.MustCompile(`</?[a-zA-Z!][^<>]*$`)
	attrRe        = regexp.MustCompile(`(?i)\b(src|href|class|style)\s*=\s*("[^"]*"?|'[^']*'?|[^\s>]*)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	// encodedTagRe matches entity-encoded markup such as "&lt;script&gt;", which is kept literal
	encodedTagRe = regexp.MustCompile(`(?i)(?:&lt;|&#60;)/?[a-z!][^<>]*?(?:&gt;|&#62;)|(?:&lt;|&#60;)/?[a-z!]`)
)

// entityReplacer decodes the entity table in one left-to-right pass
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&#160;", " ",
	"&amp;", "&",
	"&#38;", "&",
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
	"&#039;", "'",
	"&apos;", "'",
	"&lt;", "<",
	"&#60;", "<",
	"&gt;", ">",
	"&#62;", ">",
	"&lsquo;", "‘",
	"&rsquo;", "’",
	"&#8216;", "‘",
	"&#8217;", "’",
	"&ldquo;", "“",
	"&rdquo;", "”",
	"&#8220;", "“",
	"&#8221;", "”",
	"&ndash;", "–",
	"&#8211;", "–",
	"&mdash;", "—",
	"&#8212;", "—",
	"&hellip;", "…",
	"&#8230;", "…",
	"&copy;", "©",
	"&reg;", "®",
	"&trade;", "™",
	"&bull;", "•",
)

// Normalize strips markup from raw feed text and decodes common entities.
// Script and style blocks are removed with their content. Entities are decoded after tags
// are stripped; encoded markup such as "&lt;script&gt;" stays encoded so it survives as text.
// The pass repeats until the text stops changing.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// Every pass after the first either shortens the text or leaves it unchanged.
	out := normalizePass(raw)
	for {
		next := normalizePass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func normalizePass(s string) string {
	s = scriptBlockRe.ReplaceAllString(s, " ")
	s = styleBlockRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = imgTagRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = openTagRe.ReplaceAllString(s, " ")
	s = attrRe.ReplaceAllString(s, " ")
	s = decodeEntities(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// decodeEntities decodes the entity table everywhere except inside encoded markup,
// so decoding never produces text a later pass would strip as a tag.
func decodeEntities(s string) string {
	spans := encodedTagRe.FindAllStringIndex(s, -1)
	if len(spans) == 0 {
		return entityReplacer.Replace(s)
	}

	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(entityReplacer.Replace(s[last:span[0]]))
		b.WriteString(s[span[0]:span[1]])
		last = span[1]
	}
	b.WriteString(entityReplacer.Replace(s[last:]))
	return b.String()
}
