package voice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// spoken variants produced by speech-to-text, mapped to canonical tokens
var spoken = strings.NewReplacer(
	"buffalo wild wings", "bww",
	"arby's", "arbys",
	"sonic drive-in", "sonic",
	"sonic drive in", "sonic",
	"forty analyzer", "fortianalyzer",
	"forte analyzer", "fortianalyzer",
	"forte gate", "fortigate",
	"forty gate", "fortigate",
	"you know", "",
)

var fillers = map[string]bool{
	"um":        true,
	"uh":        true,
	"like":      true,
	"actually":  true,
	"basically": true,
}

// normalize lowercases text, canonicalizes spoken variants and drops filler
// words and trailing punctuation.
func normalize(text string) string {
	text = spoken.Replace(strings.ToLower(text))
	words := strings.Fields(text)
	out := words[:0]
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:")
		if w == "" || fillers[w] {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

var (
	unitRe     = regexp.MustCompile(`\b(bww|arbys|arby'?s|sonic)\b`)
	storeRe    = regexp.MustCompile(`\b(?:store|site)\s+(\d{2,4})\b`)
	numberRe   = regexp.MustCompile(`\b(\d{2,4})\b(\s+(?:hours?|days?|weeks?|months?))?`)
	deviceRe   = regexp.MustCompile(`\b(fortigate|fortinet|switch|ap|access\s+point|router|firewall)[-\s]*(\d{1,2})?\b`)
	severityRe = regexp.MustCompile(`\b(low|medium|high|critical)\b`)
	limitRe    = regexp.MustCompile(`\b(?:top|first|show\s+me)\s+(\d+)\b`)
)

var deviceNames = map[string]string{
	"fortigate":   "FortiGate",
	"fortinet":    "FortiGate",
	"switch":      "Switch",
	"ap":          "AP",
	"accesspoint": "AP",
	"router":      "Router",
	"firewall":    "Firewall",
}

// extractEntities pulls unit, site, device and severity out of normalized
// text. Units outside the built-in set are found through vocab.
func extractEntities(text string, vocab map[string]map[string]struct{}) map[string]string {
	entities := make(map[string]string)

	if m := unitRe.FindStringSubmatch(text); m != nil {
		entities[EntityUnit] = strings.ToUpper(strings.ReplaceAll(m[1], "'", ""))
	} else if u, ok := vocabMatch(text, vocab[EntityUnit]); ok {
		entities[EntityUnit] = strings.ToUpper(u)
	}

	if m := storeRe.FindStringSubmatch(text); m != nil {
		entities[EntitySite] = m[1]
	} else {
		for _, m := range numberRe.FindAllStringSubmatch(text, -1) {
			if m[2] == "" {
				entities[EntitySite] = m[1]
				break
			}
		}
	}

	if m := deviceRe.FindStringSubmatch(text); m != nil {
		num := "01"
		if m[2] != "" {
			n, _ := strconv.Atoi(m[2])
			num = fmt.Sprintf("%02d", n)
		}
		entities[EntityDevice] = deviceNames[strings.Join(strings.Fields(m[1]), "")] + "-" + num
	}

	if m := severityRe.FindStringSubmatch(text); m != nil {
		entities[EntitySeverity] = m[1]
	}
	return entities
}

func vocabMatch(text string, words map[string]struct{}) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	padded := " " + text + " "
	best := ""
	for w := range words {
		lw := strings.ToLower(w)
		if strings.Contains(padded, " "+lw+" ") && len(lw) > len(best) {
			best = lw
		}
	}
	return best, best != ""
}

type timeframeRule struct {
	re     *regexp.Regexp
	format func([]string) string
}

var timeframeRules = []timeframeRule{
	{regexp.MustCompile(`\blast\s+(\d+)\s+(hours?|days?|weeks?)\b`), func(m []string) string { return m[1] + m[2][:1] }},
	{regexp.MustCompile(`\blast\s+(hour|day|week|month)\b`), func(m []string) string { return "1" + m[1][:1] }},
	{regexp.MustCompile(`\b(yesterday|today)\b`), func(m []string) string {
		if m[1] == "yesterday" {
			return "1d"
		}
		return "1h"
	}},
}

const defaultTimeframe = "24h"

// extractParameters derives timeframe, analysis type and result limit.
func extractParameters(text string, intent Intent) map[string]any {
	params := map[string]any{"timeframe": defaultTimeframe}
	for _, rule := range timeframeRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			params["timeframe"] = rule.format(m)
			break
		}
	}

	if intent == IntentSecurityAnalysis {
		switch {
		case strings.Contains(text, "malware"):
			params["analysis_type"] = "malware"
		case strings.Contains(text, "intrusion"), strings.Contains(text, "attack"):
			params["analysis_type"] = "intrusion"
		case strings.Contains(text, "vulnerability"), strings.Contains(text, "vuln"):
			params["analysis_type"] = "vulnerability"
		default:
			params["analysis_type"] = "general"
		}
	}

	if m := limitRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			params["limit"] = n
		}
	}
	return params
}

// generalize turns a normalized command into a pattern source, replacing
// the literal unit and site with capture groups.
func generalize(text string, entities map[string]string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	unit := strings.ToLower(entities[EntityUnit])
	site := entities[EntitySite]
	parts := make([]string, len(words))
	for i, w := range words {
		switch {
		case unit != "" && w == unit:
			parts[i] = `(\w+)`
		case site != "" && w == site:
			parts[i] = `(\d+)`
		default:
			parts[i] = regexp.QuoteMeta(w)
		}
	}
	src := strings.Join(parts, `\s+`)
	if isWordByte(text[0]) {
		src = `\b` + src
	}
	if isWordByte(text[len(text)-1]) {
		src += `\b`
	}
	return src
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
