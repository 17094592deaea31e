package voting

import (
	"context"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
)

const opAddComment = "voting.add_comment"

// AddComment attaches a comment to a question or answer. The author needs the
// comment privilege; the check and the insert share one transaction.
func (e *Engine) AddComment(ctx context.Context, authorID string, ref content.Ref, body string) (content.Comment, error) {
	var comment content.Comment
	_, err := e.transact(ctx, opAddComment, func(u *unit) error {
		if err := u.content.Require(ctx, ref); err != nil {
			return err
		}
		if err := u.reputation.Require(ctx, authorID, reputation.PrivilegeComment); err != nil {
			return err
		}
		commentID, err := e.idProvider.NewID()
		if err != nil {
			return err
		}
		comment, err = content.NewComment(commentID, authorID, ref, body, e.clock())
		if err != nil {
			return err
		}
		return u.content.InsertComment(ctx, comment)
	})
	if err != nil {
		return content.Comment{}, err
	}
	return comment, nil
}
