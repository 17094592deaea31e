package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Unix(1700000000, 0).UTC()

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:content_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return testNow },
		IDProvider: ids.NewSequence("content"),
	})
	if err != nil {
		t.Fatalf("failed to construct content service: %v", err)
	}
	return service, db
}

func mustQuestion(t *testing.T, service *Service, authorID string, tags ...string) Question {
	t.Helper()
	question, err := service.CreateQuestion(context.Background(), authorID, QuestionInput{Title: "How do channels close?", Body: "Details", Tags: tags})
	if err != nil {
		t.Fatalf("create question failed: %v", err)
	}
	return question
}

func TestNewRefValidates(t *testing.T) {
	if _, err := NewRef("comment", "c-1"); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if _, err := NewRef(KindAnswer, "   "); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("expected empty id rejection, got %v", err)
	}
	if _, err := NewRef(KindAnswer, strings.Repeat("x", maxIdentifierLength+1)); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("expected length rejection, got %v", err)
	}
	ref, err := NewRef(KindQuestion, " q-1 ")
	if err != nil || ref != QuestionRef("q-1") {
		t.Fatalf("unexpected ref %+v err %v", ref, err)
	}
	if ref.String() != "question:q-1" {
		t.Fatalf("unexpected string %q", ref.String())
	}
}

func TestCreateQuestionNormalizesTags(t *testing.T) {
	service, db := newTestService(t)
	question := mustQuestion(t, service, "asker", " Go ", "go", "Concurrency", "")

	tags, err := NewDirectory(db).TagsOf(context.Background(), question.ID)
	if err != nil {
		t.Fatalf("tags failed: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "concurrency" || tags[1].Name != "go" {
		t.Fatalf("unexpected tags %+v", tags)
	}

	second := mustQuestion(t, service, "asker", "go")
	again, err := NewDirectory(db).TagsOf(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("tags failed: %v", err)
	}
	if len(again) != 1 || again[0].ID != tags[1].ID {
		t.Fatalf("expected existing tag to be reused, got %+v", again)
	}
}

func TestCreateQuestionRejectsInvalidInput(t *testing.T) {
	service, _ := newTestService(t)
	testCases := []QuestionInput{
		{Title: " ", Body: "body"},
		{Title: "title", Body: ""},
		{Title: strings.Repeat("t", maxTitleLength+1), Body: "body"},
		{Title: "title", Body: "body", Tags: []string{"a", "b", "c", "d", "e", "f"}},
		{Title: "title", Body: "body", Tags: []string{strings.Repeat("t", maxTagNameLength+1)}},
	}
	for _, input := range testCases {
		if _, err := service.CreateQuestion(context.Background(), "asker", input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", input, err)
		}
	}
}

func TestUpdateRequiresAuthor(t *testing.T) {
	service, _ := newTestService(t)
	question := mustQuestion(t, service, "asker")
	answer, err := service.CreateAnswer(context.Background(), "helper", question.ID, "Use close()")
	if err != nil {
		t.Fatalf("create answer failed: %v", err)
	}

	if _, err := service.UpdateQuestion(context.Background(), "helper", question.ID, QuestionInput{Title: "x", Body: "y"}); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected not author, got %v", err)
	}
	if _, err := service.UpdateAnswer(context.Background(), "asker", answer.ID, "changed"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected not author, got %v", err)
	}

	updated, err := service.UpdateAnswer(context.Background(), "helper", answer.ID, "  Use close(ch)  ")
	if err != nil {
		t.Fatalf("update answer failed: %v", err)
	}
	if updated.Body != "Use close(ch)" {
		t.Fatalf("unexpected body %q", updated.Body)
	}
}

func TestCreateAnswerRequiresQuestion(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.CreateAnswer(context.Background(), "helper", "missing", "body"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFollowLifecycle(t *testing.T) {
	service, db := newTestService(t)
	question := mustQuestion(t, service, "asker")
	ref := QuestionRef(question.ID)
	ctx := context.Background()

	if err := service.Follow(ctx, "asker", ref); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected self follow rejection, got %v", err)
	}
	if err := service.Follow(ctx, "reader", ref); err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	if err := service.Follow(ctx, "reader", ref); !errors.Is(err, ErrAlreadyFollowing) {
		t.Fatalf("expected already following, got %v", err)
	}
	followers, err := NewDirectory(db).FollowersOf(ctx, ref)
	if err != nil || len(followers) != 1 || followers[0] != "reader" {
		t.Fatalf("unexpected followers %v err %v", followers, err)
	}
	if err := service.Unfollow(ctx, "reader", ref); err != nil {
		t.Fatalf("unfollow failed: %v", err)
	}
	if err := service.Unfollow(ctx, "reader", ref); !errors.Is(err, ErrNotFollowing) {
		t.Fatalf("expected not following, got %v", err)
	}
	if err := service.Follow(ctx, "reader", AnswerRef("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFollowTag(t *testing.T) {
	service, db := newTestService(t)
	mustQuestion(t, service, "asker", "go")
	var tag Tag
	if err := db.Where("name = ?", "go").Take(&tag).Error; err != nil {
		t.Fatalf("failed to load tag: %v", err)
	}
	ctx := context.Background()

	if err := service.FollowTag(ctx, "reader", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing tag, got %v", err)
	}
	if err := service.FollowTag(ctx, "reader", tag.ID); err != nil {
		t.Fatalf("follow tag failed: %v", err)
	}
	followers, err := NewDirectory(db).FollowersOfTag(ctx, tag.ID)
	if err != nil || len(followers) != 1 {
		t.Fatalf("unexpected tag followers %v err %v", followers, err)
	}
	if err := service.UnfollowTag(ctx, "reader", tag.ID); err != nil {
		t.Fatalf("unfollow tag failed: %v", err)
	}
}

func TestDirectoryLookups(t *testing.T) {
	service, db := newTestService(t)
	question := mustQuestion(t, service, "asker")
	answer, err := service.CreateAnswer(context.Background(), "helper", question.ID, "body")
	if err != nil {
		t.Fatalf("create answer failed: %v", err)
	}
	directory := NewDirectory(db)
	ctx := context.Background()

	exists, err := directory.Exists(ctx, AnswerRef(answer.ID))
	if err != nil || !exists {
		t.Fatalf("expected answer to exist, got %v err %v", exists, err)
	}
	exists, err = directory.Exists(ctx, QuestionRef("missing"))
	if err != nil || exists {
		t.Fatalf("expected missing question, got %v err %v", exists, err)
	}
	if author, err := directory.ResolveAuthor(ctx, AnswerRef(answer.ID)); err != nil || author != "helper" {
		t.Fatalf("unexpected author %q err %v", author, err)
	}
	if questionID, err := directory.QuestionOf(ctx, answer.ID); err != nil || questionID != question.ID {
		t.Fatalf("unexpected question %q err %v", questionID, err)
	}
	if err := directory.SetAccepted(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := directory.SetAccepted(ctx, answer.ID, true); err != nil {
		t.Fatalf("set accepted failed: %v", err)
	}
	answers, err := directory.LockAnswersOfQuestion(ctx, question.ID)
	if err != nil || len(answers) != 1 || !answers[0].Accepted {
		t.Fatalf("unexpected answers %+v err %v", answers, err)
	}
}
