package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

// Normalize maps a raw profile record onto the canonical shape. It is the
// only place that knows where the remote writers put each field; the record
// itself is never modified. A nil record yields an empty profile.
func Normalize(raw *models.RawProfile) *models.CandidateProfile {
	p := &models.CandidateProfile{}
	if raw == nil {
		return p
	}
	meta := raw.Meta
	if meta == nil {
		meta = &models.RawMeta{}
	}
	p.CandidateID = strings.TrimSpace(raw.CandidateID)

	// stage 1
	p.Stage1.Statuses = statusAliases(meta.Status, meta.Step1Status, raw.Status, raw.Step1Status)
	p.Stage1.Error = firstError(raw.Step1Error, meta.ErrorMessage, raw.ErrorMessage)
	s1 := firstObject(raw.Step1JSON, meta.RawCV)
	p.Stage1.ArtifactPresent = s1 != nil
	p.Stage1.ArtifactKey = firstText(raw.JSONS3Key, meta.JSONS3Key)
	p.Stage1Artifact = stage1Artifact(s1, meta)

	// stage 2
	s2meta := raw.Step2Meta
	if s2meta == nil {
		s2meta = meta.Step2Meta
	}
	var s2metaStatus, s2outputKey models.LooseString
	if s2meta != nil {
		s2metaStatus, s2outputKey = s2meta.Status, s2meta.OutputKey
		p.Stage2Meta = &models.Stage2Meta{
			Status:      s2meta.Status.String(),
			CompletedAt: s2meta.CompletedAt.String(),
			DurationMS:  s2meta.DurationMS.Ptr(),
			Model:       s2meta.Model.String(),
			OutputKey:   s2meta.OutputKey.String(),
		}
	}
	p.Stage2.Statuses = statusAliases(meta.Step2Status, raw.Step2Status, s2metaStatus)
	p.Stage2.Error = firstError(raw.Step2Error, meta.Step2Error, raw.Step2ErrorMessage, meta.Step2ErrorMessage)
	s2 := firstObject(raw.Step2JSON, meta.Step2JSON)
	p.Stage2.ArtifactPresent = s2 != nil
	p.Stage2.ArtifactKey = firstText(
		raw.CVMasterS3Key,
		meta.CVMasterS3Key,
		refKey(raw.Step2S3),
		refKey(meta.Step2S3),
		s2outputKey,
	)
	p.Stage2Artifact = stage2Artifact(s2, meta)

	return p
}

// normalizeAlias upper-cases a status value and folds "in progress" and
// "in-progress" onto IN_PROGRESS.
func normalizeAlias(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(v)
}

func statusAliases(vals ...models.LooseString) []string {
	var out []string
	for _, v := range vals {
		if s := normalizeAlias(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstError(raws ...json.RawMessage) models.StageError {
	for _, r := range raws {
		if e := models.ParseStageError(r); !e.Empty() {
			return e
		}
	}
	return models.StageError{}
}

// firstObject returns the first value that is a JSON object with at least one key.
func firstObject(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		b := bytes.TrimSpace(r)
		if len(b) == 0 || b[0] != '{' {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil || len(obj) == 0 {
			continue
		}
		return b
	}
	return nil
}

func firstText(vals ...models.LooseString) string {
	for _, v := range vals {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

func refKey(ref *models.RawObjectRef) models.LooseString {
	if ref == nil {
		return ""
	}
	return ref.Key
}

func cleanList(vals []models.LooseString) []string {
	var out []string
	for _, v := range vals {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasMetaIdentity(m *models.RawMeta) bool {
	return firstText(m.FullName, m.Headline, m.Location, m.Email, m.Phone) != "" ||
		m.ATSScoreInternal.Valid || m.ATSScoreModel.Valid || m.YearsOfExperience.Valid
}

func stage1Artifact(b json.RawMessage, meta *models.RawMeta) *models.Stage1Artifact {
	if b == nil && !hasMetaIdentity(meta) {
		return nil
	}
	var r models.RawStage1
	if b != nil {
		// a mistyped field is skipped; the rest of the document still decodes
		_ = json.Unmarshal(b, &r)
	}

	a := &models.Stage1Artifact{
		Identity: models.Identity{
			FullName: firstText(r.Identity.FullName, meta.FullName),
			Headline: firstText(r.Identity.Headline, meta.Headline),
			Location: firstText(r.Identity.Location, meta.Location),
			Emails:   cleanList(r.Identity.Emails),
			Phones:   cleanList(r.Identity.Phones),
			LinkedIn: r.Identity.LinkedIn.String(),
			GitHub:   r.Identity.GitHub.String(),
		},
		Skills: models.Stage1Skills{
			Hard:       cleanList(r.Skills.Hard),
			Soft:       cleanList(r.Skills.Soft),
			Normalized: cleanList(r.Skills.Normalized),
			Raw:        cleanList(r.Skills.Raw),
			Tools:      cleanList(r.Skills.Tools),
		},
		Summary: r.Summary.ProfileSummary.String(),
	}
	if len(a.Identity.Emails) == 0 && meta.Email.String() != "" {
		a.Identity.Emails = []string{meta.Email.String()}
	}
	if len(a.Identity.Phones) == 0 && meta.Phone.String() != "" {
		a.Identity.Phones = []string{meta.Phone.String()}
	}

	for _, e := range r.Experiences {
		a.Experiences = append(a.Experiences, models.Experience{
			Title:   firstText(e.Title, e.Role),
			Company: e.Company.String(),
			Start:   firstText(e.DateStart, e.StartDate),
			End:     firstText(e.DateEnd, e.EndDate),
		})
	}
	for _, l := range r.Languages {
		if name := l.Name.String(); name != "" {
			a.Languages = append(a.Languages, models.Language{Name: name, Level: l.Level.String()})
		}
	}
	if r.Sectors != nil {
		a.PrimarySector = r.Sectors.PrimarySector.String()
	}

	a.ATS.Internal = firstFloat(r.ATS.ScoreInternal, meta.ATSScoreInternal)
	a.ATS.Model = firstFloat(r.ATS.ScoreModel, meta.ATSScoreModel)
	a.ATS.Tips = cleanList(r.ATS.Tips)

	for _, is := range r.Quality.Issues {
		if is.Code.String() == "" && is.Message.String() == "" {
			continue
		}
		a.Quality.Issues = append(a.Quality.Issues, models.QualityIssue{Code: is.Code.String(), Message: is.Message.String()})
	}
	a.Quality.Confidence = r.Quality.GlobalConfidence.Ptr()
	a.Career.YearsOfExperience = firstFloat(r.Career.YearsOfExperience, meta.YearsOfExperience)
	a.Career.Seniority = r.Career.CurrentSeniority.String()
	return a
}

func stage2Artifact(b json.RawMessage, meta *models.RawMeta) *models.Stage2Artifact {
	if b == nil {
		return nil
	}
	var r models.RawStage2
	_ = json.Unmarshal(b, &r)

	a := &models.Stage2Artifact{
		FullName: r.FullName.String(),
		Headline: r.Headline.String(),
		Location: r.Location.String(),
		Summary:  r.Summary.String(),
		Emails:   cleanList(r.Emails),
		Phones:   cleanList(r.Phones),
		Skills: models.Stage2Skills{
			Technical:  cleanList(r.Skills.Technical),
			Functional: cleanList(r.Skills.Functional),
			Soft:       cleanList(r.Skills.Soft),
			Tools:      cleanList(r.Skills.Tools),
			Cloud:      cleanList(r.Skills.Cloud),
		},
		Links: models.Links{
			LinkedIn:  r.Links.LinkedIn.String(),
			GitHub:    r.Links.GitHub.String(),
			Portfolio: r.Links.Portfolio.String(),
		},
	}
	var atsScore models.LooseFloat
	if r.ATS != nil {
		atsScore = r.ATS.Score
	}
	a.ATSScore = firstFloat(atsScore, r.ATSScore, meta.ATSScoreModel)
	return a
}

func firstFloat(vals ...models.LooseFloat) *float64 {
	for _, v := range vals {
		if v.Valid {
			return v.Ptr()
		}
	}
	return nil
}
