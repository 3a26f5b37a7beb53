package audit

import (
	"fmt"
	"math"
	"strings"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

type Level string

const (
	LevelGood Level = "good"
	LevelWarn Level = "warn"
	LevelBad  Level = "bad"
	LevelInfo Level = "info"
)

const (
	maxPositives    = 6
	maxImprovements = 8

	contactFullName = 18
	contactHeadline = 8
	contactLocation = 6
	contactEmail    = 18
	contactPhone    = 10
	contactCodeLink = 10
	contactLinkedIn = 6

	skillsCap = 30
	atsCap    = 20
	// added when no ATS score was computed upstream, so missing data is not
	// scored as a poor result
	atsNeutral = 10
)

// Metric is one audited field of the stage-1 artifact.
type Metric struct {
	Key            string `json:"key"`
	Label          string `json:"label"`
	Status         string `json:"status"`
	Level          Level  `json:"level"`
	Value          string `json:"value"`
	Recommendation string `json:"recommendation"`
}

// Breakdown holds the weighted subtotals summed into the global score.
type Breakdown struct {
	Contact    int `json:"contact"`
	Skills     int `json:"skills"`
	Experience int `json:"experience"`
	ATS        int `json:"ats"`
}

type Result struct {
	GlobalScore  int       `json:"global_score"`
	Breakdown    Breakdown `json:"breakdown"`
	Completeness int       `json:"completeness"` // percent of core fields present
	Metrics      []Metric  `json:"metrics"`
	Positives    []Metric  `json:"positives"`
	Improvements []Metric  `json:"improvements"`
	Tips         []string  `json:"tips,omitempty"`
}

// Compute scores a stage-1 artifact. A nil artifact is audited as if every
// field were missing.
func Compute(a *models.Stage1Artifact) Result {
	if a == nil {
		a = &models.Stage1Artifact{}
	}
	f := extract(a)

	res := Result{
		Metrics: metrics(f),
		Tips:    append([]string(nil), a.ATS.Tips...),
	}
	res.Breakdown = breakdown(f)
	res.GlobalScore = clamp(res.Breakdown.Contact+res.Breakdown.Skills+res.Breakdown.Experience+res.Breakdown.ATS, 0, 100)
	res.Completeness = completeness(f)

	for _, m := range res.Metrics {
		switch m.Level {
		case LevelGood:
			if len(res.Positives) < maxPositives {
				res.Positives = append(res.Positives, m)
			}
		case LevelWarn, LevelBad:
			if len(res.Improvements) < maxImprovements {
				res.Improvements = append(res.Improvements, m)
			}
		}
	}
	return res
}

type fields struct {
	fullName, headline, location string
	email, phone                 string
	linkedIn, codeLink           string

	atsInternal, atsModel *float64

	experiences, hard, soft, normalized, languages int
	sector                                          string
	issues                                          []models.QualityIssue
}

func extract(a *models.Stage1Artifact) fields {
	code := strings.TrimSpace(a.Identity.GitHub)
	if strings.EqualFold(code, "unknown") {
		code = ""
	}
	return fields{
		fullName:    strings.TrimSpace(a.Identity.FullName),
		headline:    strings.TrimSpace(a.Identity.Headline),
		location:    strings.TrimSpace(a.Identity.Location),
		email:       a.Identity.Email(),
		phone:       a.Identity.Phone(),
		linkedIn:    strings.TrimSpace(a.Identity.LinkedIn),
		codeLink:    code,
		atsInternal: a.ATS.Internal,
		atsModel:    a.ATS.Model,
		experiences: len(a.Experiences),
		hard:        len(a.Skills.Hard),
		soft:        len(a.Skills.Soft),
		normalized:  len(a.Skills.Normalized),
		languages:   len(a.Languages),
		sector:      strings.TrimSpace(a.PrimarySector),
		issues:      a.Quality.Issues,
	}
}

func breakdown(f fields) Breakdown {
	var b Breakdown
	for _, slot := range []struct {
		value  string
		points int
	}{
		{f.fullName, contactFullName},
		{f.headline, contactHeadline},
		{f.location, contactLocation},
		{f.email, contactEmail},
		{f.phone, contactPhone},
		{f.codeLink, contactCodeLink},
		{f.linkedIn, contactLinkedIn},
	} {
		if slot.value != "" {
			b.Contact += slot.points
		}
	}

	b.Skills = clamp(2*f.hard+f.normalized, 0, skillsCap)

	switch {
	case f.experiences >= 4:
		b.Experience = 20
	case f.experiences == 3:
		b.Experience = 16
	case f.experiences == 2:
		b.Experience = 12
	case f.experiences == 1:
		b.Experience = 8
	}

	if f.atsInternal == nil {
		b.ATS = atsNeutral
	} else {
		b.ATS = clamp(int(math.Round(*f.atsInternal*0.2)), 0, atsCap)
	}
	return b
}

func completeness(f fields) int {
	checks := []bool{
		f.fullName != "",
		f.headline != "",
		f.location != "",
		f.email != "",
		f.phone != "",
		f.experiences > 0,
		f.hard > 0,
		f.soft > 0,
	}
	n := 0
	for _, ok := range checks {
		if ok {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(checks))))
}

func metrics(f fields) []Metric {
	out := []Metric{
		textMetric("full_name", "Full name", f.fullName, LevelBad, "Add your full name."),
		textMetric("headline", "Headline", f.headline, LevelWarn, "Add a clear headline aligned with the target role (e.g. \"IT Project Manager\")."),
		textMetric("location", "Location", f.location, LevelWarn, "Add a city; it is used for matching."),
		textMetric("email", "Email", f.email, LevelBad, "Add an email address; it is required to apply."),
		textMetric("phone", "Phone", f.phone, LevelWarn, "Add a phone number to raise the call-back rate."),
		linkMetric("linkedin", "LinkedIn", f.linkedIn != "", LevelWarn, "Add a LinkedIn URL."),
		linkMetric("code_link", "GitHub / Portfolio", f.codeLink != "", LevelBad, "Add a GitHub or portfolio link with projects or demos."),
		atsMetric("ats_internal", "ATS (internal)", f.atsInternal,
			"Check the internal ATS computation of stage 1.",
			"Good ATS level.",
			"Add keywords and quantified results to each experience.",
			"Rework structure, keywords and quantified impact first."),
		atsMetric("ats_model", "ATS (model)", f.atsModel,
			"Check the model score of stage 1.",
			"Good model score.",
			"Improve relevance with normalized skills and result-oriented bullets.",
			"Improve relevance with normalized skills and result-oriented bullets."),
		countMetric("experiences", "Experiences", f.experiences, 3, 1,
			"Add or detail experiences (3 or more is ideal).", "Add at least one experience."),
		countMetric("hard_skills", "Hard skills", f.hard, 10, 5,
			"Add targeted hard skills (AWS, SQL, APIs, Agile...).", "Add targeted hard skills (AWS, SQL, APIs, Agile...)."),
		countMetric("soft_skills", "Soft skills", f.soft, 8, 0,
			"Add 5 to 10 relevant soft skills.", ""),
		countMetric("normalized_skills", "Normalized skills", f.normalized, 12, 0,
			"Add normalized skills (ATS keywords).", ""),
		countMetric("languages", "Languages", f.languages, 1, 0,
			"Add at least one language with its level.", ""),
		textMetric("primary_sector", "Primary sector", f.sector, LevelWarn, "Add a primary sector; it helps matching."),
	}

	if len(f.issues) > 0 {
		rec := strings.TrimSpace(f.issues[0].Message)
		if rec == "" {
			rec = "Fix the detected quality issues."
		}
		out = append(out, Metric{
			Key:            "quality_issues",
			Label:          "Quality issues",
			Status:         "To fix",
			Level:          LevelWarn,
			Value:          fmt.Sprintf("%d", len(f.issues)),
			Recommendation: rec,
		})
	}
	return out
}

const (
	statusOK       = "OK"
	statusMissing  = "Missing"
	statusImprove  = "To improve"
	statusCritical = "Critical"
	statusInfo     = "Info"
	noAction       = "Nothing to do."
	placeholder    = "—"
)

func statusFor(l Level) string {
	switch l {
	case LevelGood:
		return statusOK
	case LevelWarn:
		return statusImprove
	case LevelBad:
		return statusMissing
	}
	return statusInfo
}

// textMetric is good when value is set, missing otherwise.
func textMetric(key, label, value string, missing Level, rec string) Metric {
	m := Metric{Key: key, Label: label, Value: placeholder, Level: missing, Recommendation: rec}
	if value != "" {
		m.Value, m.Level, m.Recommendation = value, LevelGood, noAction
	}
	m.Status = statusFor(m.Level)
	return m
}

func linkMetric(key, label string, present bool, missing Level, rec string) Metric {
	m := Metric{Key: key, Label: label, Value: "Absent", Level: missing, Recommendation: rec}
	if present {
		m.Value, m.Level, m.Recommendation = "Present", LevelGood, noAction
	}
	m.Status = statusFor(m.Level)
	return m
}

// countMetric grades n: good from goodAt, warn from warnAt, bad below. A zero
// warnAt means there is no bad band.
func countMetric(key, label string, n, goodAt, warnAt int, warnRec, badRec string) Metric {
	m := Metric{Key: key, Label: label, Value: fmt.Sprintf("%d", n)}
	switch {
	case n >= goodAt:
		m.Level, m.Recommendation = LevelGood, noAction
	case n >= warnAt:
		m.Level, m.Recommendation = LevelWarn, warnRec
	default:
		m.Level, m.Recommendation = LevelBad, badRec
		m.Status = statusCritical
		if n == 0 {
			m.Status = statusMissing
		}
		return m
	}
	m.Status = statusFor(m.Level)
	return m
}

func atsMetric(key, label string, score *float64, absentRec, goodRec, warnRec, badRec string) Metric {
	m := Metric{Key: key, Label: label, Value: placeholder}
	if score == nil {
		m.Level, m.Status, m.Recommendation = LevelInfo, statusInfo, absentRec
		return m
	}
	s := *score
	m.Value = fmt.Sprintf("%d/100", int(math.Round(s)))
	switch {
	case s >= 70:
		m.Level, m.Status, m.Recommendation = LevelGood, statusOK, goodRec
	case s >= 50:
		m.Level, m.Status, m.Recommendation = LevelWarn, statusImprove, warnRec
	default:
		m.Level, m.Status, m.Recommendation = LevelBad, statusCritical, badRec
	}
	return m
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
