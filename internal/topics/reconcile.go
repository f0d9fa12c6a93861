// Package topics extracts study topics with a generator and reconciles each
// extraction run against the topics already stored for a project.
package topics

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/pkg/models"
)

// Similarity thresholds.
const (
	jaccardThreshold = 0.5
	overlapThreshold = 0.75
	keywordThreshold = 0.6
)

// Candidate is a topic proposed by one extraction run.
type Candidate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Normalize lowercases name, collapses every run of non-alphanumeric
// characters to one space and trims the result.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSpace := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Similar reports whether a and b describe the same topic. Names match when
// equal or contained after normalization, or when their token sets overlap
// enough by Jaccard index or by the smaller set. Keyword sets match when the
// overlap covers enough of the smaller set.
func Similar(a, b Candidate) bool {
	na, nb := Normalize(a.Name), Normalize(b.Name)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ta, tb := tokenSet(na), tokenSet(nb)
	inter := intersect(ta, tb)
	union := len(ta) + len(tb) - inter
	if union > 0 && float64(inter)/float64(union) >= jaccardThreshold {
		return true
	}
	if smaller := min(len(ta), len(tb)); smaller > 0 && float64(inter)/float64(smaller) >= overlapThreshold {
		return true
	}

	ka, kb := keywordSet(a.Keywords), keywordSet(b.Keywords)
	if smaller := min(len(ka), len(kb)); smaller > 0 {
		if float64(intersect(ka, kb))/float64(smaller) >= keywordThreshold {
			return true
		}
	}
	return false
}

// Merge folds other into base. The shorter name wins when it is contained
// in the longer one, the longer description wins, and keywords are unioned
// case-insensitively up to models.MaxTopicKeywords.
func Merge(base, other Candidate) Candidate {
	out := Candidate{
		Name:        mergedName(base.Name, other.Name),
		Description: base.Description,
		Keywords:    CleanKeywords(append(append([]string(nil), base.Keywords...), other.Keywords...)),
	}
	if len(other.Description) > len(base.Description) {
		out.Description = other.Description
	}
	return out
}

func mergedName(base, other string) string {
	shorter, longer := base, other
	if len(Normalize(other)) < len(Normalize(base)) {
		shorter, longer = other, base
	}
	if contains(longer, shorter) {
		return shorter
	}
	return base
}

// contains reports whether short is part of long: either as a normalized
// substring, or with every token of short present in long once a plural
// trailing "s" is dropped from both.
func contains(long, short string) bool {
	nl, ns := Normalize(long), Normalize(short)
	if ns == "" {
		return false
	}
	if strings.Contains(nl, ns) {
		return true
	}

	longStems := make(map[string]struct{})
	for _, tok := range strings.Fields(nl) {
		longStems[stem(tok)] = struct{}{}
	}
	for _, tok := range strings.Fields(ns) {
		if _, ok := longStems[stem(tok)]; !ok {
			return false
		}
	}
	return true
}

func stem(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

// Dedupe merges each candidate into the first accepted candidate it is
// similar to, or accepts it. Order of first appearance is kept.
func Dedupe(candidates []Candidate) []Candidate {
	var accepted []Candidate
	for _, c := range candidates {
		c.Keywords = CleanKeywords(c.Keywords)
		c.Name = strings.TrimSpace(c.Name)
		if Normalize(c.Name) == "" {
			continue
		}

		merged := false
		for i := range accepted {
			if Similar(accepted[i], c) {
				accepted[i] = Merge(accepted[i], c)
				merged = true
				break
			}
		}
		if !merged {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// CleanKeywords trims keywords, drops empties and case-insensitive
// duplicates, and caps the list at models.MaxTopicKeywords.
func CleanKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, min(len(keywords), models.MaxTopicKeywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == models.MaxTopicKeywords {
			break
		}
	}
	return out
}

// Band returns the target topic count range for a project with
// materialCount valid materials.
func Band(materialCount int) (lo, hi int) {
	switch {
	case materialCount <= 1:
		return 3, 4
	case materialCount <= 3:
		return 3, 5
	case materialCount <= 6:
		return 4, 6
	default:
		return 6, 8
	}
}

// Plan is the set of writes that brings stored topics in line with one
// extraction run.
type Plan struct {
	Updates []*models.Topic
	Inserts []*models.Topic
	Deletes []uuid.UUID
	// Kept lists updated and inserted topics in extraction order.
	Kept []*models.Topic
}

// Reconcile matches candidates to existing topics by normalized name.
// Matches are updated in place, keeping ID and confirmation. The rest are
// inserted unconfirmed with fresh IDs. Unmatched unconfirmed topics are
// deleted; confirmed ones are always kept.
func Reconcile(projectID uuid.UUID, candidates []Candidate, existing []*models.Topic, sourceMaterialIDs []uuid.UUID) Plan {
	byName := make(map[string]*models.Topic, len(existing))
	for _, t := range existing {
		key := Normalize(t.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = t
		}
	}

	var plan Plan
	matched := make(map[uuid.UUID]bool)
	for i, c := range candidates {
		key := Normalize(c.Name)
		if cur, ok := byName[key]; ok {
			if matched[cur.ID] {
				continue
			}
			matched[cur.ID] = true

			t := *cur
			t.Description = c.Description
			t.Keywords = CleanKeywords(c.Keywords)
			t.OrderIndex = i
			t.SourceMaterialIDs = sourceMaterialIDs
			plan.Updates = append(plan.Updates, &t)
			plan.Kept = append(plan.Kept, &t)
			continue
		}

		t := &models.Topic{
			ID:                uuid.New(),
			ProjectID:         projectID,
			Name:              c.Name,
			Description:       c.Description,
			Keywords:          CleanKeywords(c.Keywords),
			OrderIndex:        i,
			SourceMaterialIDs: sourceMaterialIDs,
		}
		plan.Inserts = append(plan.Inserts, t)
		plan.Kept = append(plan.Kept, t)
	}

	for _, t := range existing {
		if !matched[t.ID] && !t.UserConfirmed {
			plan.Deletes = append(plan.Deletes, t.ID)
		}
	}
	return plan
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		set[tok] = struct{}{}
	}
	return set
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			set[kw] = struct{}{}
		}
	}
	return set
}

func intersect(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
