package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Category represents an article classification.
type Category string

const (
	APT               Category = "APT"
	ZeroDay           Category = "Zero Day"
	CVE               Category = "CVE"
	Ransomware        Category = "Ransomware"
	Phishing          Category = "Phishing"
	SocialEngineering Category = "Social Engineering"
	Malware           Category = "Malware"
	Vulnerabilities   Category = "Vulnerabilities"
	Breaches          Category = "Breaches"
	Tools             Category = "Tools"
	Threats           Category = "Threats"
	General           Category = "General"
)

type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// rules are evaluated in order; earlier entries are more specific and win ties.
var rules = []rule{
	{APT, regexp.MustCompile(`\bapt[- ]?\d+\b|advanced persistent threat|state[- ]sponsored|nation[- ]state|\blazarus\b|fancy bear|cozy bear|\b(volt|salt|silk) typhoon\b|sandworm|kimsuky`)},
	{ZeroDay, regexp.MustCompile(`zero[- ]day|\b0[- ]?day\b|0-click|zero[- ]click`)},
	{CVE, regexp.MustCompile(`\bcve-\d{4}-\d{4,}\b`)},
	{Ransomware, regexp.MustCompile(`ransomware|\bransom\b|lockbit|blackcat|\balphv\b|\bclop\b|\bconti\b|akira|black basta|double extortion`)},
	{Phishing, regexp.MustCompile(`phishing|\bphish|smishing|vishing|credential harvest`)},
	{SocialEngineering, regexp.MustCompile(`social engineering|pretext|impersonat|business email compromise|\bbec\b|deepfake|scam`)},
	{Malware, regexp.MustCompile(`malware|trojan|botnet|spyware|infostealer|\bstealer\b|backdoor|rootkit|\bworm\b|\bloader\b|\brat\b|keylogger|wiper`)},
	{Vulnerabilities, regexp.MustCompile(`vulnerabilit|\bflaws?\b|\bpatch(es|ed)?\b|\bexploit|security update|advisory|\brce\b|remote code execution`)},
	{Breaches, regexp.MustCompile(`breach|data leak|\bleak(ed|s)?\b|exposed data|stolen data|compromised|exfiltrat`)},
	{Tools, regexp.MustCompile(`\btools?\b|open[- ]source|framework|\bscanner\b|github|toolkit|\bplugin\b`)},
	{Threats, regexp.MustCompile(`threat|attack|\bhack|cyber|campaign|\bactors?\b|intrusion`)},
}

// Categories returns the taxonomy in precedence order, ending with the generic fallback.
func Categories() []Category {
	out := make([]Category, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, General)
}

// Classify maps article text to the first matching category in precedence order.
// When no rule matches, the source's default category is used, then General.
func Classify(title, description, sourceDefault string) Category {
	text := strings.ToLower(title + " " + description)
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.category
		}
	}

	if def := strings.TrimSpace(sourceDefault); def != "" {
		if cat, err := Parse(def); err == nil {
			return cat
		}
		return Category(def)
	}
	return General
}

// Parse resolves a category name case-insensitively.
func Parse(name string) (Category, error) {
	name = strings.TrimSpace(name)
	for _, cat := range Categories() {
		if strings.EqualFold(string(cat), name) {
			return cat, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}
