package content

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mustAnswer(t *testing.T, service *Service, authorID, questionID string) Answer {
	t.Helper()
	answer, err := service.CreateAnswer(context.Background(), authorID, questionID, "Use close()")
	if err != nil {
		t.Fatalf("create answer failed: %v", err)
	}
	return answer
}

func TestQuestionDetailCarriesTagsAndAnswerCount(t *testing.T) {
	service, _ := newTestService(t)
	question := mustQuestion(t, service, "asker", "go", "channels")
	mustAnswer(t, service, "helper", question.ID)
	mustAnswer(t, service, "other", question.ID)

	detail, err := service.Question(context.Background(), question.ID)
	if err != nil {
		t.Fatalf("question failed: %v", err)
	}
	if detail.ID != question.ID || detail.AnswerCount != 2 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if len(detail.Tags) != 2 || detail.Tags[0].Name != "channels" || detail.Tags[1].Name != "go" {
		t.Fatalf("unexpected tags %+v", detail.Tags)
	}
	if _, err := service.Question(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListQuestionsFiltersByTagAndPages(t *testing.T) {
	service, _ := newTestService(t)
	first := mustQuestion(t, service, "asker", "go")
	second := mustQuestion(t, service, "asker", "rust")
	third := mustQuestion(t, service, "asker", "Go")
	ctx := context.Background()

	all, err := service.ListQuestions(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != third.ID || all[2].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	tagged, err := service.ListQuestions(ctx, ListOptions{TagName: " GO "})
	if err != nil {
		t.Fatalf("tagged list failed: %v", err)
	}
	if len(tagged) != 2 {
		t.Fatalf("expected two go questions, got %d", len(tagged))
	}
	for _, detail := range tagged {
		if detail.ID == second.ID {
			t.Fatalf("rust question leaked into go listing")
		}
	}

	page, err := service.ListQuestions(ctx, ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != second.ID {
		t.Fatalf("unexpected page %+v", page)
	}
	if _, err := service.ListQuestions(ctx, ListOptions{Offset: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid offset, got %v", err)
	}
}

func TestAnswersOfListsAcceptedFirst(t *testing.T) {
	service, db := newTestService(t)
	question := mustQuestion(t, service, "asker")
	early := mustAnswer(t, service, "helper", question.ID)
	late := mustAnswer(t, service, "other", question.ID)
	if err := NewDirectory(db).SetAccepted(context.Background(), late.ID, true); err != nil {
		t.Fatalf("set accepted failed: %v", err)
	}

	answers, err := service.AnswersOf(context.Background(), question.ID)
	if err != nil {
		t.Fatalf("answers failed: %v", err)
	}
	if len(answers) != 2 || answers[0].ID != late.ID || answers[1].ID != early.ID {
		t.Fatalf("unexpected answer order %+v", answers)
	}
	if _, err := service.AnswersOf(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTagSummaries(t *testing.T) {
	service, _ := newTestService(t)
	mustQuestion(t, service, "asker", "go")
	mustQuestion(t, service, "asker", "go", "rust")
	ctx := context.Background()

	goTag, err := service.Tag(ctx, "Go")
	if err != nil {
		t.Fatalf("tag by name failed: %v", err)
	}
	if goTag.Name != "go" || goTag.UsageCount != 2 || goTag.FollowerCount != 0 {
		t.Fatalf("unexpected go summary %+v", goTag)
	}
	if err := service.FollowTag(ctx, "reader", goTag.ID); err != nil {
		t.Fatalf("follow tag failed: %v", err)
	}
	byID, err := service.Tag(ctx, goTag.ID)
	if err != nil || byID.FollowerCount != 1 {
		t.Fatalf("unexpected summary by id %+v err %v", byID, err)
	}

	summaries, err := service.Tags(ctx)
	if err != nil {
		t.Fatalf("tags failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Name != "go" || summaries[1].Name != "rust" || summaries[1].UsageCount != 1 {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
	if _, err := service.Tag(ctx, "python"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing tag, got %v", err)
	}
}

func TestFollowedListings(t *testing.T) {
	service, _ := newTestService(t)
	question := mustQuestion(t, service, "asker", "go")
	answer := mustAnswer(t, service, "helper", question.ID)
	goTag, err := service.Tag(context.Background(), "go")
	if err != nil {
		t.Fatalf("tag failed: %v", err)
	}
	ctx := context.Background()
	if err := service.Follow(ctx, "reader", QuestionRef(question.ID)); err != nil {
		t.Fatalf("follow question failed: %v", err)
	}
	if err := service.Follow(ctx, "reader", AnswerRef(answer.ID)); err != nil {
		t.Fatalf("follow answer failed: %v", err)
	}
	if err := service.FollowTag(ctx, "reader", goTag.ID); err != nil {
		t.Fatalf("follow tag failed: %v", err)
	}

	questions, err := service.FollowedQuestions(ctx, "reader")
	if err != nil || len(questions) != 1 || questions[0].ID != question.ID {
		t.Fatalf("unexpected followed questions %+v err %v", questions, err)
	}
	answers, err := service.FollowedAnswers(ctx, "reader")
	if err != nil || len(answers) != 1 || answers[0].ID != answer.ID {
		t.Fatalf("unexpected followed answers %+v err %v", answers, err)
	}
	tags, err := service.FollowedTags(ctx, "reader")
	if err != nil || len(tags) != 1 || tags[0].ID != goTag.ID {
		t.Fatalf("unexpected followed tags %+v err %v", tags, err)
	}
	none, err := service.FollowedQuestions(ctx, "asker")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no followed questions for asker, got %+v err %v", none, err)
	}
}

func TestNewCommentValidatesBody(t *testing.T) {
	ref := QuestionRef("q-1")
	if _, err := NewComment("c-1", "author", ref, "   ", testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty comment rejection, got %v", err)
	}
	if _, err := NewComment("c-1", "author", ref, strings.Repeat("x", maxCommentLength+1), testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected length rejection, got %v", err)
	}
	comment, err := NewComment("c-1", " author ", ref, " Why? ", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.Body != "Why?" || comment.AuthorID != "author" || comment.Target() != ref {
		t.Fatalf("unexpected comment %+v", comment)
	}
}

func TestCommentsListOldestFirst(t *testing.T) {
	service, db := newTestService(t)
	question := mustQuestion(t, service, "asker")
	ref := QuestionRef(question.ID)
	directory := NewDirectory(db)
	ctx := context.Background()

	for _, id := range []string{"c-2", "c-1"} {
		comment, err := NewComment(id, "reader", ref, "Which version?", testNow)
		if err != nil {
			t.Fatalf("new comment failed: %v", err)
		}
		if err := directory.InsertComment(ctx, comment); err != nil {
			t.Fatalf("insert comment failed: %v", err)
		}
	}

	comments, err := service.Comments(ctx, ref)
	if err != nil {
		t.Fatalf("comments failed: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != "c-1" || comments[1].ID != "c-2" {
		t.Fatalf("unexpected comments %+v", comments)
	}
	if _, err := service.Comments(ctx, AnswerRef("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
