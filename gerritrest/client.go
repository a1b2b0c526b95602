// Package gerritrest wraps the subset of the Gerrit REST API the
// Dispatcher needs to backfill data that stream-events doesn't carry:
// the reviewer list (for recipient selection) and inline comments (for
// notify_review_inline_comments). It exists so events.Dispatcher depends
// on a small interface instead of *gerrit.Client directly.
package gerritrest

import (
	"github.com/andygrunwald/go-gerrit"

	"github.com/levenlabs/gerrit-chat-bridge/gerritssh"
)

// Client is the Dispatcher's view of the Gerrit REST API.
type Client interface {
	ListReviewers(project string, number int64) ([]gerritssh.EventAccount, error)
	ListInlineComments(project string, number int64) ([]gerritssh.InlineComment, error)
}

type client struct {
	c *gerrit.Client
}

// New wraps an already-authenticated go-gerrit client.
func New(c *gerrit.Client) Client {
	return client{c: c}
}

func (c client) ListReviewers(project string, number int64) ([]gerritssh.EventAccount, error) {
	changeID := gerritssh.ChangeIDWithProjectNumber(project, number)
	rs, _, err := c.c.Changes.ListReviewers(changeID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, nil
	}
	out := make([]gerritssh.EventAccount, 0, len(*rs))
	for _, r := range *rs {
		out = append(out, gerritssh.EventAccount{
			Name:     r.Name,
			Email:    r.Email,
			Username: r.Username,
		})
	}
	return out, nil
}

func (c client) ListInlineComments(project string, number int64) ([]gerritssh.InlineComment, error) {
	changeID := gerritssh.ChangeIDWithProjectNumber(project, number)
	cm, _, err := c.c.Changes.ListChangeComments(changeID)
	if err != nil {
		return nil, err
	}
	if cm == nil {
		return nil, nil
	}
	var out []gerritssh.InlineComment
	for file, comments := range *cm {
		for _, ci := range comments {
			out = append(out, gerritssh.InlineComment{
				File:    file,
				Line:    ci.Line,
				Message: ci.Message,
				Reviewer: gerritssh.EventAccount{
					Name:     ci.Author.Name,
					Email:    ci.Author.Email,
					Username: ci.Author.Username,
				},
			})
		}
	}
	return out, nil
}
