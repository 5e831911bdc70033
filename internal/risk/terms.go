package risk

import "regexp"

// Term classification is heuristic and approximate, never
// authoritative. It feeds an advisory score with a deliberate
// over-blocking bias.

var explicitTerms = []string{
	"porn", "xxx", "nsfw", "nude", "naked", "hentai", "erotic",
	"blowjob", "milf", "camgirl", "onlyfans", "escort", "hookup",
	"fetish", "bdsm", "threesome",
}

var moderateTerms = []string{
	"sexy", "lingerie", "bikini", "dating", "swimsuit", "hot girls",
	"hot guys", "tinder", "adult",
}

// TermPattern is a named regex cluster for text classification.
type TermPattern struct {
	Name  string
	Regex *regexp.Regexp
}

// clusterPatterns groups explicit phrasings the flat term lists miss.
var clusterPatterns = []TermPattern{
	{Name: "age", Regex: regexp.MustCompile(`(?i)\b(barely\s*legal|18\s*[+]|teen(s)?\s+(girl|boy)s?)\b`)},
	{Name: "anatomy", Regex: regexp.MustCompile(`(?i)\b(boob|tit|breast|ass|booty|genital)s?\b`)},
	{Name: "action", Regex: regexp.MustCompile(`(?i)\b(strip(ping|per)?|undress(ing)?|twerk(ing)?)\b`)},
	{Name: "location", Regex: regexp.MustCompile(`(?i)\b(strip\s*club|massage\s*parlou?r|red\s*light)\b`)},
	{Name: "relationship", Regex: regexp.MustCompile(`(?i)\b(sugar\s*(daddy|baby)|affair|one\s*night\s*stand)\b`)},
	{Name: "fetish", Regex: regexp.MustCompile(`(?i)\b(feet\s*pics?|dominatrix|bondage)\b`)},
}
