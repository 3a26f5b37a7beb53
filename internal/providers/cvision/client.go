package cvision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/providers/apiclient"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// Client reads candidate profiles and artifact links from the profile BFF.
type Client struct {
	api    *apiclient.Client
	group  singleflight.Group
	logger *logrus.Logger
	now    func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{api: apiclient.New(baseURL, timeout), logger: logger, now: time.Now}
}

// FetchProfile returns the raw profile record. Concurrent calls for the same
// candidate and include share one request. A record that does not exist yet
// is reported as CodeNotFound wrapping utils.ErrNotFound.
func (c *Client) FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error) {
	const op = "CVisionClient.FetchProfile"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if !include.Valid() {
		include = models.IncludePreview
	}

	v, err, shared := c.group.Do(candidateID+"|"+string(include), func() (any, error) {
		var body json.RawMessage
		q := url.Values{"include": []string{string(include)}}
		if err := c.api.Do(ctx, http.MethodGet, c.api.URL(q, "candidates", candidateID, "profile"), nil, &body); err != nil {
			return nil, err
		}
		var out models.RawProfile
		if err := json.Unmarshal(body, &out); err != nil {
			// a mistyped field is skipped; anything else is a broken payload
			var typ *json.UnmarshalTypeError
			if !errors.As(err, &typ) {
				return nil, err
			}
			c.logger.WithError(err).WithField("candidate_id", candidateID).Warn("profile record has a mistyped field")
		}
		return &out, nil
	})
	if err != nil {
		return nil, mapError(op, "profile", err)
	}
	if shared {
		c.logger.WithField("candidate_id", candidateID).Debug("profile fetch shared with a concurrent caller")
	}

	// callers get their own top-level copy of a shared result
	cp := *v.(*models.RawProfile)
	if cp.CandidateID == "" {
		cp.CandidateID = candidateID
	}
	return &cp, nil
}

type artifactResponse struct {
	URL              string  `json:"url"`
	Type             string  `json:"type"`
	ExpiresInSeconds float64 `json:"expires_in_seconds"`
}

// ArtifactURL resolves a short-lived download URL for an artifact type such
// as "cv_master" or "step1_json". The BFF answers either an object or a bare
// URL string.
func (c *Client) ArtifactURL(ctx context.Context, candidateID, artifactType string) (models.ArtifactLink, error) {
	const op = "CVisionClient.ArtifactURL"

	candidateID, artifactType = strings.TrimSpace(candidateID), strings.TrimSpace(artifactType)
	if candidateID == "" || artifactType == "" {
		return models.ArtifactLink{}, utils.E(utils.CodeInvalidArgument, op, "candidate_id and artifact type are required", nil)
	}

	var raw json.RawMessage
	if err := c.api.Do(ctx, http.MethodGet, c.api.URL(nil, "candidates", candidateID, "artifacts", artifactType), nil, &raw); err != nil {
		return models.ArtifactLink{}, mapError(op, "artifact", err)
	}

	link := models.ArtifactLink{Type: artifactType}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		link.URL = strings.TrimSpace(s)
	} else {
		var ar artifactResponse
		if err := json.Unmarshal(raw, &ar); err != nil {
			return models.ArtifactLink{}, utils.E(utils.CodeInternal, op, "invalid artifact response", err)
		}
		link.URL = strings.TrimSpace(ar.URL)
		if ar.ExpiresInSeconds > 0 {
			link.ExpiresAt = c.now().Add(time.Duration(ar.ExpiresInSeconds * float64(time.Second))).UTC()
		}
	}
	if link.URL == "" {
		return models.ArtifactLink{}, utils.E(utils.CodeNotFound, op, "artifact has no url", utils.ErrNotFound)
	}
	return link, nil
}

func mapError(op, what string, err error) error {
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return utils.E(utils.CodeNotFound, op, what+" not found", utils.ErrNotFound)
		case se.StatusCode == http.StatusBadRequest:
			return utils.E(utils.CodeInvalidArgument, op, se.Message, err)
		case se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests:
			return utils.E(utils.CodeUnavailable, op, what+" api unavailable", err)
		default:
			return utils.E(utils.CodeInternal, op, se.Message, err)
		}
	}
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) {
		return utils.E(utils.CodeInternal, op, "invalid "+what+" response", err)
	}
	if errors.Is(err, context.Canceled) {
		return utils.E(utils.CodeUnavailable, op, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.E(utils.CodeTimeout, op, what+" api timed out", err)
	}
	return utils.E(utils.CodeUnavailable, op, what+" api unreachable", err)
}
