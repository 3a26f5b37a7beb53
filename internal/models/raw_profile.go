package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawProfile is the profile record as returned by the profile API. Several
// writers fill it independently, so the same fact may live at the top level,
// under meta, or both. Only the pipeline normalizer reads these fields.
type RawProfile struct {
	CandidateID string `json:"candidate_id"`

	Status       LooseString     `json:"status,omitempty"` // step1
	Step1Status  LooseString     `json:"step1_status,omitempty"`
	ErrorMessage json.RawMessage `json:"error_message,omitempty"`
	Step1Error   json.RawMessage `json:"step1_error,omitempty"`
	Step1JSON    json.RawMessage `json:"step1_json,omitempty"`
	JSONS3Key    LooseString     `json:"json_s3_key,omitempty"`

	Step2Status       LooseString     `json:"step2_status,omitempty"`
	Step2JSON         json.RawMessage `json:"step2_json,omitempty"`
	Step2Error        json.RawMessage `json:"step2_error,omitempty"`
	Step2ErrorMessage json.RawMessage `json:"step2_error_message,omitempty"`
	CVMasterS3Key     LooseString     `json:"cv_master_s3_key,omitempty"`
	Step2S3           *RawObjectRef   `json:"step2_s3,omitempty"`
	Step2Meta         *RawStage2Meta  `json:"step2_meta,omitempty"`

	Meta *RawMeta `json:"meta,omitempty"`
}

type RawMeta struct {
	Status       LooseString     `json:"status,omitempty"`
	Step1Status  LooseString     `json:"step1_status,omitempty"`
	ErrorMessage json.RawMessage `json:"error_message,omitempty"`
	JSONS3Key    LooseString     `json:"json_s3_key,omitempty"`
	RawCV        json.RawMessage `json:"raw_cv,omitempty"`

	Step2Status       LooseString     `json:"step2_status,omitempty"`
	Step2JSON         json.RawMessage `json:"step2_json,omitempty"`
	Step2Error        json.RawMessage `json:"step2_error,omitempty"`
	Step2ErrorMessage json.RawMessage `json:"step2_error_message,omitempty"`
	CVMasterS3Key     LooseString     `json:"cv_master_s3_key,omitempty"`
	Step2S3           *RawObjectRef   `json:"step2_s3,omitempty"`
	Step2Meta         *RawStage2Meta  `json:"step2_meta,omitempty"`

	FullName          LooseString `json:"full_name,omitempty"`
	Headline          LooseString `json:"headline,omitempty"`
	Location          LooseString `json:"location,omitempty"`
	Email             LooseString `json:"email,omitempty"`
	Phone             LooseString `json:"phone,omitempty"`
	ATSScoreInternal  LooseFloat  `json:"ats_score_internal,omitempty"`
	ATSScoreModel     LooseFloat  `json:"ats_score_model,omitempty"`
	YearsOfExperience LooseFloat  `json:"years_of_experience_inferred,omitempty"`
}

type RawObjectRef struct {
	Bucket LooseString `json:"bucket,omitempty"`
	Key    LooseString `json:"key,omitempty"`
}

type RawStage2Meta struct {
	Status      LooseString `json:"status,omitempty"`
	CompletedAt LooseString `json:"completed_at,omitempty"`
	DurationMS  LooseFloat  `json:"duration_ms,omitempty"`
	Model       LooseString `json:"model,omitempty"`
	OutputKey   LooseString `json:"output_key,omitempty"`
}

// RawStage1 mirrors step1_json (and meta.raw_cv, which carries the same shape).
type RawStage1 struct {
	Identity    RawIdentity     `json:"identity"`
	Skills      RawStage1Skills `json:"skills"`
	Experiences []RawExperience `json:"experiences"`
	Languages   []RawLanguage   `json:"languages"`
	Sectors     *struct {
		PrimarySector LooseString `json:"primary_sector"`
	} `json:"sectors"`
	ATS struct {
		ScoreInternal LooseFloat    `json:"score_internal"`
		ScoreModel    LooseFloat    `json:"score_model"`
		Tips          []LooseString `json:"ats_improvement_tips"`
	} `json:"ats"`
	Quality struct {
		Issues           []RawQualityIssue `json:"issues"`
		GlobalConfidence LooseFloat        `json:"global_confidence"`
	} `json:"quality"`
	Career struct {
		YearsOfExperience LooseFloat  `json:"years_of_experience_inferred"`
		CurrentSeniority  LooseString `json:"current_seniority"`
	} `json:"career"`
	Summary struct {
		ProfileSummary LooseString `json:"profile_summary"`
	} `json:"summary"`
}

type RawIdentity struct {
	FullName LooseString   `json:"full_name"`
	Headline LooseString   `json:"headline"`
	Location LooseString   `json:"location"`
	Emails   []LooseString `json:"emails"`
	Phones   []LooseString `json:"phones"`
	LinkedIn LooseString   `json:"linkedin"`
	GitHub   LooseString   `json:"github"`
}

type RawStage1Skills struct {
	Hard       []LooseString `json:"hard_skills"`
	Soft       []LooseString `json:"soft_skills"`
	Normalized []LooseString `json:"skills_normalized"`
	Raw        []LooseString `json:"skills_raw"`
	Tools      []LooseString `json:"tools"`
}

type RawExperience struct {
	Title     LooseString `json:"title"`
	Role      LooseString `json:"role"`
	Company   LooseString `json:"company"`
	DateStart LooseString `json:"date_start"`
	StartDate LooseString `json:"start_date"`
	DateEnd   LooseString `json:"date_end"`
	EndDate   LooseString `json:"end_date"`
}

type RawLanguage struct {
	Name  LooseString `json:"language"`
	Level LooseString `json:"level"`
}

// UnmarshalJSON accepts both {"language": "...", "level": "..."} and a bare string.
func (l *RawLanguage) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		return l.Name.UnmarshalJSON(b)
	}
	type alias RawLanguage
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = RawLanguage(a)
	return nil
}

type RawQualityIssue struct {
	Code    LooseString `json:"code"`
	Message LooseString `json:"message"`
}

// RawStage2 mirrors step2_json, the rewritten profile.
type RawStage2 struct {
	FullName LooseString   `json:"full_name"`
	Headline LooseString   `json:"headline"`
	Location LooseString   `json:"location"`
	Summary  LooseString   `json:"summary"`
	Emails   []LooseString `json:"emails"`
	Phones   []LooseString `json:"phones"`
	Skills   struct {
		Technical  []LooseString `json:"technical"`
		Functional []LooseString `json:"functional"`
		Soft       []LooseString `json:"soft"`
		Tools      []LooseString `json:"tools"`
		Cloud      []LooseString `json:"cloud"`
	} `json:"skills"`
	Links struct {
		LinkedIn  LooseString `json:"linkedin"`
		GitHub    LooseString `json:"github"`
		Portfolio LooseString `json:"portfolio"`
	} `json:"links"`
	ATS *struct {
		Score LooseFloat `json:"score"`
	} `json:"ats"`
	ATSScore LooseFloat `json:"ats_score"`
}

// LooseString decodes any JSON scalar into its text form. Objects and arrays
// decode to "" instead of failing the whole record.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	case '{', '[':
		*s = ""
	default:
		// numbers and booleans keep their literal text
		*s = LooseString(b)
	}
	return nil
}

func (s LooseString) String() string { return strings.TrimSpace(string(s)) }

// LooseFloat decodes a JSON number or a numeric string. Anything else leaves
// it invalid rather than zero, so "no score" never reads as a score of 0.
type LooseFloat struct {
	Value float64
	Valid bool
}

func (f *LooseFloat) UnmarshalJSON(b []byte) error {
	*f = LooseFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = LooseFloat{Value: v, Valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*f = LooseFloat{Value: v, Valid: true}
	}
	return nil
}

func (f LooseFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Ptr returns the value as *float64, nil when absent.
func (f LooseFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}
