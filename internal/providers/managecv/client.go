package managecv

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labkha-cpu/ai-Apply/internal/providers/apiclient"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// Ack is the trigger API answer. Fields the API does not send stay empty.
type Ack struct {
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// Client starts pipeline stages on the manage-cv API.
type Client struct {
	api *apiclient.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{api: apiclient.New(baseURL, timeout)}
}

// TriggerStage2 asks the pipeline to run the rewrite stage for a candidate.
// Any failure here is final for the request: callers must not start polling.
func (c *Client) TriggerStage2(ctx context.Context, candidateID string) (Ack, error) {
	const op = "ManageCVClient.TriggerStage2"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Ack{}, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}

	var ack Ack
	if err := c.api.Do(ctx, http.MethodPost, c.api.URL(nil, candidateID, "step2"), nil, &ack); err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) {
			code := utils.CodeBackendFailure
			switch se.StatusCode {
			case http.StatusNotFound:
				code = utils.CodeNotFound
			case http.StatusConflict:
				code = utils.CodeConflict
			}
			return Ack{}, utils.E(code, op, "stage 2 trigger rejected: "+se.Message, err)
		}
		return Ack{}, utils.E(utils.CodeUnavailable, op, "stage 2 trigger unreachable", err)
	}
	if ack.CandidateID == "" {
		ack.CandidateID = candidateID
	}
	return ack, nil
}
