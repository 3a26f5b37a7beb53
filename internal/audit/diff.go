package audit

import (
	"fmt"
	"math"
	"strings"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

const (
	maxAddedShown = 8
	maxListShown  = 12
)

// DiffRow describes how one tracked field changed between stage 1 and stage 2.
type DiffRow struct {
	Key         string `json:"key"`
	Field       string `json:"field"`
	Stage1      string `json:"stage1"`
	Stage2      string `json:"stage2"`
	Improvement string `json:"improvement"`
	Level       Level  `json:"level"`
}

// Compare lists the tracked fields in a fixed order: headline, summary,
// location, email, phone, skills, ATS score. Either artifact may be nil.
func Compare(s1 *models.Stage1Artifact, s2 *models.Stage2Artifact) []DiffRow {
	if s1 == nil {
		s1 = &models.Stage1Artifact{}
	}
	if s2 == nil {
		s2 = &models.Stage2Artifact{}
	}
	return []DiffRow{
		scalarRow("headline", "Headline", s1.Identity.Headline, s2.Headline, "Reformulated"),
		scalarRow("summary", "Summary", s1.Summary, s2.Summary, "Clarified"),
		scalarRow("location", "Location", s1.Identity.Location, s2.Location, "Normalized"),
		scalarRow("email", "Email", s1.Identity.Email(), s2.Email(), "Normalized"),
		scalarRow("phone", "Phone", s1.Identity.Phone(), s2.Phone(), "Normalized"),
		skillsRow(s1.Skills.All(), s2.Skills.All()),
		atsRow(s1.ATS.Internal, s2.ATSScore),
	}
}

// normText collapses runs of whitespace and trims.
func normText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func display(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func scalarRow(key, field, v1, v2, changed string) DiffRow {
	a, b := normText(v1), normText(v2)
	row := DiffRow{Key: key, Field: field, Stage1: display(a), Stage2: display(b)}
	switch {
	case a == b:
		row.Improvement, row.Level = placeholder, LevelInfo
	case a == "":
		row.Improvement, row.Level = "Added", LevelGood
	case b == "":
		row.Improvement, row.Level = "Removed", LevelWarn
	default:
		row.Improvement, row.Level = changed, LevelWarn
	}
	return row
}

// uniqItems trims items and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func uniqItems(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = normText(it)
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// AddedSkills returns the stage-2 skills absent from stage 1, compared
// trimmed and case-folded, in stage-2 order.
func AddedSkills(stage1, stage2 []string) []string {
	have := make(map[string]struct{}, len(stage1))
	for _, s := range uniqItems(stage1) {
		have[strings.ToLower(s)] = struct{}{}
	}
	var added []string
	for _, s := range uniqItems(stage2) {
		if _, ok := have[strings.ToLower(s)]; !ok {
			added = append(added, s)
		}
	}
	return added
}

func joinCapped(items []string, limit int) string {
	if len(items) == 0 {
		return placeholder
	}
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(items[:limit], ", "), len(items)-limit)
}

func skillsRow(stage1, stage2 []string) DiffRow {
	row := DiffRow{
		Key:    "skills",
		Field:  "Skills",
		Stage1: joinCapped(uniqItems(stage1), maxListShown),
		Stage2: joinCapped(uniqItems(stage2), maxListShown),
	}
	added := AddedSkills(stage1, stage2)
	if len(added) == 0 {
		row.Improvement, row.Level = placeholder, LevelInfo
		return row
	}
	row.Improvement, row.Level = joinCapped(added, maxAddedShown), LevelGood
	return row
}

// ATSDelta is the rounded stage-2 minus stage-1 score, nil unless both exist.
func ATSDelta(stage1, stage2 *float64) *int {
	if stage1 == nil || stage2 == nil {
		return nil
	}
	d := int(math.Round(*stage2 - *stage1))
	return &d
}

func scoreText(s *float64) string {
	if s == nil {
		return placeholder
	}
	return fmt.Sprintf("%d/100", int(math.Round(*s)))
}

func atsRow(stage1, stage2 *float64) DiffRow {
	row := DiffRow{Key: "ats_score", Field: "ATS score", Stage1: scoreText(stage1), Stage2: scoreText(stage2)}
	d := ATSDelta(stage1, stage2)
	if d == nil {
		row.Improvement, row.Level = placeholder, LevelInfo
		return row
	}
	row.Improvement = fmt.Sprintf("%+d", *d)
	row.Level = LevelGood
	if *stage2 < *stage1 {
		row.Level = LevelWarn
	}
	return row
}
