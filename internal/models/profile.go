package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CandidateProfile is the canonical record built by the pipeline normalizer.
// Every field has exactly one location; nothing downstream reads raw aliases.
type CandidateProfile struct {
	CandidateID string `json:"candidate_id"`

	Stage1 StageState `json:"stage1"`
	Stage2 StageState `json:"stage2"`

	Stage1Artifact *Stage1Artifact `json:"stage1_artifact,omitempty"`
	Stage2Artifact *Stage2Artifact `json:"stage2_artifact,omitempty"`
	Stage2Meta     *Stage2Meta     `json:"stage2_meta,omitempty"`
}

// StageState holds every status signal known for one pipeline stage.
type StageState struct {
	// Statuses are upper-cased, trimmed and non-empty, in alias precedence order.
	Statuses        []string   `json:"statuses,omitempty"`
	Error           StageError `json:"error"`
	ArtifactPresent bool       `json:"artifact_present"`
	ArtifactKey     string     `json:"artifact_key,omitempty"`
}

// PrimaryStatus is the highest-precedence status alias, or "".
func (s StageState) PrimaryStatus() string {
	if len(s.Statuses) == 0 {
		return ""
	}
	return s.Statuses[0]
}

type Stage2Meta struct {
	Status      string   `json:"status,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	DurationMS  *float64 `json:"duration_ms,omitempty"`
	Model       string   `json:"model,omitempty"`
	OutputKey   string   `json:"output_key,omitempty"`
}

type ErrorKind string

const (
	ErrorNone     ErrorKind = ""
	ErrorMessage  ErrorKind = "message"
	ErrorDetailed ErrorKind = "detailed"
)

// StageError is the pipeline-reported error of a stage. The remote record
// carries it as a string or as {message, details}; ParseStageError is the
// only way to build one from the wire.
type StageError struct {
	Kind    ErrorKind `json:"kind,omitempty"`
	Text    string    `json:"message,omitempty"`
	Details string    `json:"details,omitempty"`
}

func (e StageError) Empty() bool { return e.Kind == ErrorNone }

// Message is the human-readable text: the message, else the details.
func (e StageError) Message() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Details
}

func ParseStageError(raw json.RawMessage) StageError {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return StageError{}
	}

	switch b[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return StageError{}
		}
		present := false
		for _, v := range obj {
			if !isNullJSON(v) {
				present = true
				break
			}
		}
		if !present {
			return StageError{}
		}
		msg := jsonText(obj["message"])
		if msg == "" {
			msg = jsonText(obj["error"])
		}
		return StageError{Kind: ErrorDetailed, Text: msg, Details: jsonText(obj["details"])}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(b, &arr); err != nil || len(arr) == 0 {
			return StageError{}
		}
		return StageError{Kind: ErrorMessage, Text: compactJSON(b)}
	default:
		text := jsonText(b)
		if text == "" || strings.EqualFold(text, "false") {
			return StageError{}
		}
		return StageError{Kind: ErrorMessage, Text: text}
	}
}

func isNullJSON(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// jsonText renders a scalar as trimmed text and any other value as compact JSON.
func jsonText(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if isNullJSON(b) {
		return ""
	}
	switch b[0] {
	case '{', '[':
		if bytes.Equal(b, []byte("{}")) || bytes.Equal(b, []byte("[]")) {
			return ""
		}
		return compactJSON(b)
	}
	var s LooseString
	if err := s.UnmarshalJSON(b); err != nil {
		return ""
	}
	return s.String()
}

func compactJSON(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}

// Stage1Artifact is the structured extraction produced by stage 1.
type Stage1Artifact struct {
	Identity      Identity      `json:"identity"`
	Skills        Stage1Skills  `json:"skills"`
	Experiences   []Experience  `json:"experiences,omitempty"`
	Languages     []Language    `json:"languages,omitempty"`
	PrimarySector string        `json:"primary_sector,omitempty"`
	ATS           ATSScores     `json:"ats"`
	Quality       QualityReport `json:"quality"`
	Career        CareerSummary `json:"career"`
	Summary       string        `json:"summary,omitempty"`
}

type Identity struct {
	FullName string   `json:"full_name,omitempty"`
	Headline string   `json:"headline,omitempty"`
	Location string   `json:"location,omitempty"`
	Emails   []string `json:"emails,omitempty"`
	Phones   []string `json:"phones,omitempty"`
	LinkedIn string   `json:"linkedin,omitempty"`
	GitHub   string   `json:"github,omitempty"`
}

func (i Identity) Email() string { return first(i.Emails) }
func (i Identity) Phone() string { return first(i.Phones) }

type Stage1Skills struct {
	Hard       []string `json:"hard,omitempty"`
	Soft       []string `json:"soft,omitempty"`
	Normalized []string `json:"normalized,omitempty"`
	Raw        []string `json:"raw,omitempty"`
	Tools      []string `json:"tools,omitempty"`
}

// All lists every stage-1 skill, as compared against the stage-2 rewrite.
func (s Stage1Skills) All() []string {
	out := make([]string, 0, len(s.Hard)+len(s.Soft)+len(s.Normalized)+len(s.Raw))
	out = append(out, s.Hard...)
	out = append(out, s.Soft...)
	out = append(out, s.Normalized...)
	return append(out, s.Raw...)
}

type Experience struct {
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

type Language struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

type ATSScores struct {
	Internal *float64 `json:"internal,omitempty"`
	Model    *float64 `json:"model,omitempty"`
	Tips     []string `json:"tips,omitempty"`
}

type QualityIssue struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type QualityReport struct {
	Issues     []QualityIssue `json:"issues,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
}

type CareerSummary struct {
	YearsOfExperience *float64 `json:"years_of_experience,omitempty"`
	Seniority         string   `json:"seniority,omitempty"`
}

// Stage2Artifact is the rewritten profile produced by stage 2.
type Stage2Artifact struct {
	FullName string       `json:"full_name,omitempty"`
	Headline string       `json:"headline,omitempty"`
	Location string       `json:"location,omitempty"`
	Summary  string       `json:"summary,omitempty"`
	Emails   []string     `json:"emails,omitempty"`
	Phones   []string     `json:"phones,omitempty"`
	Skills   Stage2Skills `json:"skills"`
	Links    Links        `json:"links"`
	ATSScore *float64     `json:"ats_score,omitempty"`
}

func (a Stage2Artifact) Email() string { return first(a.Emails) }
func (a Stage2Artifact) Phone() string { return first(a.Phones) }

type Stage2Skills struct {
	Technical  []string `json:"technical,omitempty"`
	Functional []string `json:"functional,omitempty"`
	Soft       []string `json:"soft,omitempty"`
	Tools      []string `json:"tools,omitempty"`
	Cloud      []string `json:"cloud,omitempty"`
}

func (s Stage2Skills) All() []string {
	out := make([]string, 0, len(s.Technical)+len(s.Functional)+len(s.Soft)+len(s.Tools)+len(s.Cloud))
	out = append(out, s.Technical...)
	out = append(out, s.Functional...)
	out = append(out, s.Soft...)
	out = append(out, s.Tools...)
	return append(out, s.Cloud...)
}

type Links struct {
	LinkedIn  string `json:"linkedin,omitempty"`
	GitHub    string `json:"github,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`
}

func first(v []string) string {
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
