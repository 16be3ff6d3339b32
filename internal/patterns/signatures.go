package patterns

import (
	"context"
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"
	"gopkg.in/yaml.v3"

	"opsmemory/pkg/models"
)

//go:embed signatures.yml
var builtinSignatures []byte

// ThreatSignature is a named campaign described by keyword indicators.
type ThreatSignature struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	AttackType  string          `yaml:"attack_type" json:"attack_type"`
	Severity    models.Severity `yaml:"severity" json:"severity"`
	Indicators  []string        `yaml:"indicators" json:"indicators"`
	Mitigation  []string        `yaml:"mitigation" json:"mitigation"`
}

type signatureFile struct {
	Signatures []ThreatSignature `yaml:"signatures"`
}

// SignatureLoadStats tracks the number of loaded and skipped signatures.
type SignatureLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedInvalid int
}

type compiledSignature struct {
	sig  ThreatSignature
	eval *sigmaevaluator.RuleEvaluator
}

// SignatureSet is an immutable table of compiled threat signatures. Each
// signature is compiled into a Sigma rule over the event's searchable text.
type SignatureSet struct {
	sigs []compiledSignature
}

// LoadSignatures compiles the built-in table plus any YAML files found at
// extraPath (file or directory). A later signature with the same id
// replaces an earlier one.
func LoadSignatures(extraPath string) (*SignatureSet, SignatureLoadStats, error) {
	var stats SignatureLoadStats

	var builtin signatureFile
	if err := yaml.Unmarshal(builtinSignatures, &builtin); err != nil {
		return nil, stats, fmt.Errorf("parse built-in signatures: %w", err)
	}
	all := builtin.Signatures

	if strings.TrimSpace(extraPath) != "" {
		extra, files, err := readSignatureFiles(extraPath)
		if err != nil {
			return nil, stats, err
		}
		stats.TotalFiles = files
		all = append(all, extra...)
	}

	byID := make(map[string]int, len(all))
	set := &SignatureSet{}
	for _, sig := range all {
		compiled, err := compileSignature(sig)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if i, ok := byID[sig.ID]; ok {
			set.sigs[i] = compiled
			continue
		}
		byID[sig.ID] = len(set.sigs)
		set.sigs = append(set.sigs, compiled)
	}
	stats.Loaded = len(set.sigs)
	return set, stats, nil
}

// Signatures returns the loaded table.
func (s *SignatureSet) Signatures() []ThreatSignature {
	if s == nil {
		return nil
	}
	out := make([]ThreatSignature, len(s.sigs))
	for i, c := range s.sigs {
		out[i] = c.sig
	}
	return out
}

// Match returns the ids of signatures whose indicators appear in the
// event's description or tags.
func (s *SignatureSet) Match(ctx context.Context, ev *models.Event) []string {
	if s == nil || ev == nil || len(s.sigs) == 0 {
		return nil
	}
	doc := map[string]interface{}{
		"text":       searchText(ev),
		"event_type": string(ev.Type),
		"unit":       ev.Unit,
	}
	var out []string
	for _, c := range s.sigs {
		res, err := c.eval.Matches(ctx, doc)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, c.sig.ID)
		}
	}
	return out
}

// MatchedIndicators counts the indicators of sig present in any of events.
func MatchedIndicators(sig ThreatSignature, events []models.Event) int {
	n := 0
	for _, ind := range sig.Indicators {
		ind = strings.ToLower(ind)
		for i := range events {
			if strings.Contains(searchText(&events[i]), ind) {
				n++
				break
			}
		}
	}
	return n
}

func searchText(ev *models.Event) string {
	return strings.ToLower(ev.Description + " " + strings.Join(ev.Tags, " "))
}

func compileSignature(sig ThreatSignature) (compiledSignature, error) {
	sig.ID = strings.TrimSpace(sig.ID)
	if sig.ID == "" {
		return compiledSignature{}, fmt.Errorf("signature without id")
	}
	if !sig.Severity.Valid() {
		return compiledSignature{}, fmt.Errorf("signature %s: invalid severity %q", sig.ID, sig.Severity)
	}
	indicators := make([]string, 0, len(sig.Indicators))
	for _, ind := range sig.Indicators {
		if ind = strings.ToLower(strings.TrimSpace(ind)); ind != "" {
			indicators = append(indicators, ind)
		}
	}
	if len(indicators) == 0 {
		return compiledSignature{}, fmt.Errorf("signature %s: no indicators", sig.ID)
	}
	sig.Indicators = indicators

	doc := map[string]interface{}{
		"title":       sig.Name,
		"id":          sig.ID,
		"description": sig.Description,
		"level":       string(sig.Severity),
		"logsource":   map[string]interface{}{"category": "network_event"},
		"detection": map[string]interface{}{
			"indicators": map[string]interface{}{"text|contains": indicators},
			"condition":  "indicators",
		},
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return compiledSignature{}, fmt.Errorf("encode signature %s: %w", sig.ID, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return compiledSignature{}, fmt.Errorf("parse signature %s: %w", sig.ID, err)
	}
	return compiledSignature{sig: sig, eval: sigmaevaluator.ForRule(rule)}, nil
}

func readSignatureFiles(path string) ([]ThreatSignature, int, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve signature path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, 0, fmt.Errorf("stat signature path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() && isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("walk signature directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, 0, fmt.Errorf("signature file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	var out []ThreatSignature
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, 0, fmt.Errorf("read signature file %s: %w", f, err)
		}
		var sf signatureFile
		if err := yaml.Unmarshal(raw, &sf); err != nil {
			return nil, 0, fmt.Errorf("parse signature file %s: %w", f, err)
		}
		out = append(out, sf.Signatures...)
	}
	return out, len(files), nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}
