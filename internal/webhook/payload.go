package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/roundhouse/internal/cierr"
)

// Push is the decoded subset of a push payload the scheduler cares about.
type Push struct {
	Ref    string
	Commit string
}

// ParsePush decodes a push-event body. GitHub, GitLab, Gogs and Gitea all
// put the updated ref at the top level under "ref"; the go-github event type
// covers the fields we read.
func ParsePush(body []byte) (*Push, error) {
	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("webhook: decode push payload: %w: %w", cierr.ErrValidation, err)
	}
	if event.GetRef() == "" {
		return nil, fmt.Errorf("webhook: push payload has no ref: %w", cierr.ErrValidation)
	}
	return &Push{
		Ref:    event.GetRef(),
		Commit: event.GetAfter(),
	}, nil
}
