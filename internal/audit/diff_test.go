package audit

import (
	"reflect"
	"testing"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

func rowByKey(t *testing.T, rows []DiffRow, key string) DiffRow {
	t.Helper()
	for _, r := range rows {
		if r.Key == key {
			return r
		}
	}
	t.Fatalf("row %s not found", key)
	return DiffRow{}
}

func TestCompareAddedSkills(t *testing.T) {
	s1 := &models.Stage1Artifact{Skills: models.Stage1Skills{Hard: []string{"React"}}}
	s2 := &models.Stage2Artifact{Skills: models.Stage2Skills{Technical: []string{"React", "SQL", "AWS"}}}

	row := rowByKey(t, Compare(s1, s2), "skills")
	if row.Improvement != "SQL, AWS" {
		t.Errorf("Improvement = %q, want %q", row.Improvement, "SQL, AWS")
	}
	if row.Level != LevelGood {
		t.Errorf("Level = %s, want good", row.Level)
	}
}

func TestCompareNormalizedIdenticalSkills(t *testing.T) {
	s1 := &models.Stage1Artifact{Skills: models.Stage1Skills{Hard: []string{"React", " sql "}, Soft: []string{"Team work"}}}
	s2 := &models.Stage2Artifact{Skills: models.Stage2Skills{
		Technical: []string{"react", "SQL"},
		Soft:      []string{"  team   WORK "},
		Tools:     []string{"REACT"},
	}}
	row := rowByKey(t, Compare(s1, s2), "skills")
	if row.Improvement != placeholder || row.Level != LevelInfo {
		t.Errorf("row = %+v, want no additions", row)
	}
}

func TestCompareAddedSkillsTruncated(t *testing.T) {
	s2 := &models.Stage2Artifact{Skills: models.Stage2Skills{Technical: items("t", 11)}}
	row := rowByKey(t, Compare(nil, s2), "skills")
	want := "t-0, t-1, t-2, t-3, t-4, t-5, t-6, t-7, +3 more"
	if row.Improvement != want {
		t.Errorf("Improvement = %q, want %q", row.Improvement, want)
	}
	if got := AddedSkills(nil, items("t", 11)); len(got) != 11 {
		t.Errorf("AddedSkills returned %d items", len(got))
	}
}

func TestCompareScalars(t *testing.T) {
	s1 := &models.Stage1Artifact{
		Identity: models.Identity{
			Headline: "dev",
			Location: "Paris",
			Emails:   []string{"ada@example.com"},
			Phones:   []string{"0600000000"},
		},
	}
	s2 := &models.Stage2Artifact{
		Headline: "Senior backend developer",
		Summary:  "Builds payment APIs.",
		Location: "  Paris ",
		Emails:   []string{"ada@example.com"},
	}
	rows := Compare(s1, s2)

	wantKeys := []string{"headline", "summary", "location", "email", "phone", "skills", "ats_score"}
	var keys []string
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Fatalf("row order = %v, want %v", keys, wantKeys)
	}

	cases := []struct {
		key         string
		improvement string
		level       Level
	}{
		{"headline", "Reformulated", LevelWarn},
		{"summary", "Added", LevelGood},
		{"location", placeholder, LevelInfo},
		{"email", placeholder, LevelInfo},
		{"phone", "Removed", LevelWarn},
	}
	for _, tc := range cases {
		r := rowByKey(t, rows, tc.key)
		if r.Improvement != tc.improvement || r.Level != tc.level {
			t.Errorf("%s row = %q/%s, want %q/%s", tc.key, r.Improvement, r.Level, tc.improvement, tc.level)
		}
	}
	if r := rowByKey(t, rows, "summary"); r.Stage1 != placeholder || r.Stage2 != "Builds payment APIs." {
		t.Errorf("summary values = %q -> %q", r.Stage1, r.Stage2)
	}
}

func TestCompareATS(t *testing.T) {
	cases := []struct {
		name        string
		s1, s2      *float64
		improvement string
		level       Level
	}{
		{"gain", fptr(62), fptr(71.4), "+9", LevelGood},
		{"equal", fptr(70), fptr(70), "+0", LevelGood},
		{"loss", fptr(80), fptr(77), "-3", LevelWarn},
		{"stage 2 missing", fptr(80), nil, placeholder, LevelInfo},
		{"stage 1 missing", nil, fptr(80), placeholder, LevelInfo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s1 := &models.Stage1Artifact{ATS: models.ATSScores{Internal: tc.s1}}
			s2 := &models.Stage2Artifact{ATSScore: tc.s2}
			r := rowByKey(t, Compare(s1, s2), "ats_score")
			if r.Improvement != tc.improvement || r.Level != tc.level {
				t.Errorf("ats row = %q/%s, want %q/%s", r.Improvement, r.Level, tc.improvement, tc.level)
			}
		})
	}
}

func TestCompareBothNil(t *testing.T) {
	for _, r := range Compare(nil, nil) {
		if r.Level != LevelInfo || r.Improvement != placeholder {
			t.Errorf("%s row = %+v, want info placeholder", r.Key, r)
		}
	}
}
