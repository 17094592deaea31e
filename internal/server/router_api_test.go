package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/database"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/voting"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiFixture struct {
	handler http.Handler
	db      *gorm.DB
}

type registeredUser struct {
	id    string
	token string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := ids.NewSequence("id")
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	contentService, err := content.NewService(content.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct content service: %v", err)
	}
	engine, err := voting.NewEngine(voting.Config{
		Database:   db,
		Policy:     reputation.DefaultPolicy().WithThreshold(reputation.PrivilegeDownvote, 40),
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	inbox, err := notifications.NewInbox(notifications.InboxConfig{Store: notifications.NewGormStore(db)})
	if err != nil {
		t.Fatalf("failed to construct inbox: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "bugboard-auth",
		Audience:      "bugboard-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: issuer,
		Users:        userService,
		Content:      contentService,
		Engine:       engine,
		Inbox:        inbox,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &apiFixture{handler: handler, db: db}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %s: %v", recorder.Body.String(), err)
	}
}

func expectError(t *testing.T, recorder *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, recorder, status)
	var body map[string]interface{}
	decode(t, recorder, &body)
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
}

func (f *apiFixture) register(t *testing.T, displayName string) registeredUser {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/users", "", map[string]string{"display_name": displayName})
	expectStatus(t, recorder, http.StatusCreated)
	var response registerResponsePayload
	decode(t, recorder, &response)
	if response.User.Reputation != users.InitialReputation || response.AccessToken == "" {
		t.Fatalf("unexpected registration response %+v", response)
	}
	return registeredUser{id: response.User.UserID, token: response.AccessToken}
}

func (f *apiFixture) setReputation(t *testing.T, userID string, total int) {
	t.Helper()
	if err := f.db.Model(&users.User{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{"reputation": total, "version": gorm.Expr("version + 1")}).Error; err != nil {
		t.Fatalf("failed to set reputation: %v", err)
	}
}

func (f *apiFixture) reputationOf(t *testing.T, userID string) int {
	t.Helper()
	recorder := f.do(t, http.MethodGet, "/users/"+userID+"/reputation", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var body struct {
		Reputation int `json:"reputation"`
	}
	decode(t, recorder, &body)
	return body.Reputation
}

func TestVotingAcceptanceAndNotificationsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	asker := f.register(t, "Asker")
	helper := f.register(t, "Helper")
	voter := f.register(t, "Voter")

	recorder := f.do(t, http.MethodPost, "/questions", asker.token, map[string]interface{}{
		"title": "Closing channels", "body": "Who closes?", "tags": []string{"go"},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var question questionPayload
	decode(t, recorder, &question)

	recorder = f.do(t, http.MethodPost, "/questions/"+question.QuestionID+"/answers", helper.token, map[string]string{"body": "The sender"})
	expectStatus(t, recorder, http.StatusCreated)
	var answer answerPayload
	decode(t, recorder, &answer)

	votePath := "/answers/" + answer.AnswerID + "/votes"
	recorder = f.do(t, http.MethodPost, votePath, voter.token, map[string]string{"type": "upvote"})
	expectError(t, recorder, http.StatusForbidden, "insufficient_reputation")

	f.setReputation(t, voter.id, 50)
	recorder = f.do(t, http.MethodPost, votePath, voter.token, map[string]string{"type": "upvote"})
	expectStatus(t, recorder, http.StatusOK)
	var vote voteResponsePayload
	decode(t, recorder, &vote)
	if vote.Score != 1 || vote.Outcome != "NEW" {
		t.Fatalf("unexpected vote response %+v", vote)
	}
	if got := f.reputationOf(t, helper.id); got != 11 {
		t.Fatalf("expected helper at 11, got %d", got)
	}

	expectError(t, f.do(t, http.MethodPost, votePath, helper.token, map[string]string{"type": "upvote"}), http.StatusForbidden, "self_vote")
	expectError(t, f.do(t, http.MethodPost, votePath, voter.token, map[string]string{"type": "sideways"}), http.StatusBadRequest, "invalid_vote_type")

	recorder = f.do(t, http.MethodGet, votePath, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var listed voteListPayload
	decode(t, recorder, &listed)
	if listed.Score != 1 || len(listed.Votes) != 1 || listed.Votes[0].VoterID != voter.id {
		t.Fatalf("unexpected vote list %+v", listed)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/questions/"+question.QuestionID+"/follow", voter.token, nil), http.StatusNoContent)
	expectError(t, f.do(t, http.MethodPost, "/questions/"+question.QuestionID+"/follow", voter.token, nil), http.StatusConflict, "already_following")

	acceptPath := "/answers/" + answer.AnswerID + "/accept"
	expectError(t, f.do(t, http.MethodPost, acceptPath, voter.token, nil), http.StatusForbidden, "not_question_owner")
	recorder = f.do(t, http.MethodPost, acceptPath, asker.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var accepted acceptResponsePayload
	decode(t, recorder, &accepted)
	if !accepted.Changed {
		t.Fatalf("expected acceptance change, got %+v", accepted)
	}
	if got := f.reputationOf(t, helper.id); got != 26 {
		t.Fatalf("expected helper at 26, got %d", got)
	}

	recorder = f.do(t, http.MethodGet, "/me/notifications?unread=true", voter.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var voterInbox struct {
		Notifications []notificationPayload `json:"notifications"`
		Unread        int64                 `json:"unread"`
	}
	decode(t, recorder, &voterInbox)
	if voterInbox.Unread != 1 || len(voterInbox.Notifications) != 1 || voterInbox.Notifications[0].Type != notifications.TypeAnswerAccepted {
		t.Fatalf("unexpected voter inbox %+v", voterInbox)
	}

	recorder = f.do(t, http.MethodGet, "/me/notifications", asker.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var askerInbox struct {
		Notifications []notificationPayload `json:"notifications"`
	}
	decode(t, recorder, &askerInbox)
	if len(askerInbox.Notifications) != 1 || askerInbox.Notifications[0].Type != notifications.TypeFollow {
		t.Fatalf("unexpected asker inbox %+v", askerInbox)
	}
	notificationID := askerInbox.Notifications[0].NotificationID
	expectError(t, f.do(t, http.MethodPost, "/me/notifications/"+notificationID+"/read", voter.token, nil), http.StatusNotFound, "notification_not_found")
	expectStatus(t, f.do(t, http.MethodPost, "/me/notifications/"+notificationID+"/read", asker.token, nil), http.StatusNoContent)

	expectStatus(t, f.do(t, http.MethodDelete, acceptPath, asker.token, nil), http.StatusOK)
	expectError(t, f.do(t, http.MethodDelete, acceptPath, asker.token, nil), http.StatusConflict, "answer_not_accepted")
	if got := f.reputationOf(t, helper.id); got != 11 {
		t.Fatalf("expected helper back at 11, got %d", got)
	}

	recorder = f.do(t, http.MethodGet, "/me/reputation/history", helper.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var history struct {
		Entries []historyEntryPayload `json:"entries"`
	}
	decode(t, recorder, &history)
	if len(history.Entries) != 3 {
		t.Fatalf("expected three history entries, got %+v", history.Entries)
	}

	recorder = f.do(t, http.MethodGet, "/me/reputation/daily-limit", helper.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var daily map[string]interface{}
	decode(t, recorder, &daily)
	if daily["earned"] != float64(10) || daily["cap"] != float64(200) {
		t.Fatalf("unexpected daily limit %v", daily)
	}
}

func TestTagFollowReachesInboxOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	asker := f.register(t, "Asker")
	helper := f.register(t, "Helper")
	voter := f.register(t, "Voter")

	recorder := f.do(t, http.MethodPost, "/questions", asker.token, map[string]interface{}{
		"title": "Buffered channels", "body": "How big?", "tags": []string{"Go"},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var first questionPayload
	decode(t, recorder, &first)
	if len(first.Tags) != 1 || first.Tags[0].Name != "go" || first.Tags[0].TagID == "" {
		t.Fatalf("expected the go tag with its id, got %+v", first.Tags)
	}
	tagID := first.Tags[0].TagID

	expectStatus(t, f.do(t, http.MethodPost, "/tags/"+tagID+"/follow", voter.token, nil), http.StatusNoContent)

	recorder = f.do(t, http.MethodGet, "/tags/go", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var tag tagSummaryPayload
	decode(t, recorder, &tag)
	if tag.TagID != tagID || tag.UsageCount != 1 || tag.FollowerCount != 1 {
		t.Fatalf("unexpected tag summary %+v", tag)
	}
	recorder = f.do(t, http.MethodGet, "/tags", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var tagList struct {
		Tags []tagSummaryPayload `json:"tags"`
	}
	decode(t, recorder, &tagList)
	if len(tagList.Tags) != 1 || tagList.Tags[0].TagID != tagID {
		t.Fatalf("unexpected tag list %+v", tagList)
	}
	recorder = f.do(t, http.MethodGet, "/me/follows/tags", voter.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var followedTags struct {
		Tags []tagPayload `json:"tags"`
	}
	decode(t, recorder, &followedTags)
	if len(followedTags.Tags) != 1 || followedTags.Tags[0].TagID != tagID {
		t.Fatalf("unexpected followed tags %+v", followedTags)
	}

	recorder = f.do(t, http.MethodPost, "/questions", helper.token, map[string]interface{}{
		"title": "Unbuffered channels", "body": "When to block?", "tags": []string{"go"},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var second questionPayload
	decode(t, recorder, &second)

	recorder = f.do(t, http.MethodGet, "/me/notifications", voter.token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var voterInbox struct {
		Notifications []notificationPayload `json:"notifications"`
	}
	decode(t, recorder, &voterInbox)
	if len(voterInbox.Notifications) != 1 || voterInbox.Notifications[0].Type != notifications.TypeTag {
		t.Fatalf("expected one tag notification, got %+v", voterInbox)
	}

	recorder = f.do(t, http.MethodGet, "/questions?tag=GO", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var listed struct {
		Questions []questionPayload `json:"questions"`
	}
	decode(t, recorder, &listed)
	if len(listed.Questions) != 2 {
		t.Fatalf("expected both tagged questions, got %+v", listed.Questions)
	}
	expectError(t, f.do(t, http.MethodGet, "/questions?limit=-1", "", nil), http.StatusBadRequest, "invalid_pagination")
}

func TestContentReadsCommentsAndUserFollowsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	asker := f.register(t, "Asker")
	helper := f.register(t, "Helper")
	voter := f.register(t, "Voter")

	recorder := f.do(t, http.MethodPost, "/questions", asker.token, map[string]interface{}{
		"title": "Select with default", "body": "Does it spin?", "tags": []string{"go"},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var question questionPayload
	decode(t, recorder, &question)
	questionPath := "/questions/" + question.QuestionID

	recorder = f.do(t, http.MethodPost, questionPath+"/answers", helper.token, map[string]string{"body": "Yes, in a loop"})
	expectStatus(t, recorder, http.StatusCreated)
	var answer answerPayload
	decode(t, recorder, &answer)

	f.setReputation(t, voter.id, 50)
	expectStatus(t, f.do(t, http.MethodPost, questionPath+"/votes", voter.token, map[string]string{"type": "upvote"}), http.StatusOK)

	recorder = f.do(t, http.MethodGet, questionPath, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var loaded questionPayload
	decode(t, recorder, &loaded)
	if loaded.Score != 1 || loaded.AnswerCount != 1 || len(loaded.Tags) != 1 {
		t.Fatalf("unexpected question read %+v", loaded)
	}
	recorder = f.do(t, http.MethodGet, questionPath+"/answers", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var answers struct {
		Answers []answerPayload `json:"answers"`
	}
	decode(t, recorder, &answers)
	if len(answers.Answers) != 1 || answers.Answers[0].AnswerID != answer.AnswerID {
		t.Fatalf("unexpected answers %+v", answers)
	}
	recorder = f.do(t, http.MethodGet, "/answers/"+answer.AnswerID, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	expectError(t, f.do(t, http.MethodGet, "/questions/missing", "", nil), http.StatusNotFound, "not_found")

	commentPath := "/answers/" + answer.AnswerID + "/comments"
	expectError(t, f.do(t, http.MethodPost, commentPath, helper.token, map[string]string{"body": "Thanks"}), http.StatusForbidden, "insufficient_reputation")
	recorder = f.do(t, http.MethodPost, commentPath, voter.token, map[string]string{"body": "Add a time.Sleep?"})
	expectStatus(t, recorder, http.StatusCreated)
	var comment commentPayload
	decode(t, recorder, &comment)
	if comment.AuthorID != voter.id || comment.TargetID != answer.AnswerID {
		t.Fatalf("unexpected comment %+v", comment)
	}
	recorder = f.do(t, http.MethodGet, commentPath, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var comments struct {
		Comments []commentPayload `json:"comments"`
	}
	decode(t, recorder, &comments)
	if len(comments.Comments) != 1 || comments.Comments[0].CommentID != comment.CommentID {
		t.Fatalf("unexpected comments %+v", comments)
	}

	followPath := "/users/" + helper.id + "/follow"
	expectStatus(t, f.do(t, http.MethodPost, followPath, voter.token, nil), http.StatusNoContent)
	expectError(t, f.do(t, http.MethodPost, followPath, voter.token, nil), http.StatusConflict, "already_following")
	expectError(t, f.do(t, http.MethodPost, followPath, helper.token, nil), http.StatusForbidden, "self_follow")

	recorder = f.do(t, http.MethodGet, "/users/"+helper.id, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var profile profilePayload
	decode(t, recorder, &profile)
	if profile.User.UserID != helper.id || profile.Followers != 1 || profile.Following != 0 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	recorder = f.do(t, http.MethodGet, "/users/"+voter.id+"/following", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var following struct {
		Users []userPayload `json:"users"`
	}
	decode(t, recorder, &following)
	if len(following.Users) != 1 || following.Users[0].UserID != helper.id {
		t.Fatalf("unexpected following list %+v", following)
	}
	expectStatus(t, f.do(t, http.MethodDelete, followPath, voter.token, nil), http.StatusNoContent)
	expectError(t, f.do(t, http.MethodDelete, followPath, voter.token, nil), http.StatusConflict, "not_following")
}

func TestAPIRejectsBadRequests(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "Someone")

	expectStatus(t, f.do(t, http.MethodGet, "/me/notifications", "", nil), http.StatusUnauthorized)
	expectError(t, f.do(t, http.MethodPost, "/users", "", map[string]string{"display_name": "  "}), http.StatusBadRequest, "invalid_display_name")
	expectError(t, f.do(t, http.MethodPost, "/questions", user.token, map[string]string{"title": "", "body": "x"}), http.StatusBadRequest, "invalid_input")
	expectError(t, f.do(t, http.MethodGet, "/questions/missing/votes", "", nil), http.StatusNotFound, "not_found")
	expectError(t, f.do(t, http.MethodPost, "/answers/missing/votes", user.token, map[string]string{"type": "upvote"}), http.StatusNotFound, "content_not_found")
	expectError(t, f.do(t, http.MethodGet, "/users/ghost/reputation", "", nil), http.StatusNotFound, "user_not_found")
	expectError(t, f.do(t, http.MethodGet, "/me/reputation/history?from=2024-03-10&to=2024-03-01", user.token, nil), http.StatusBadRequest, "invalid_date_range")
	expectError(t, f.do(t, http.MethodGet, "/me/notifications?unread=maybe", user.token, nil), http.StatusBadRequest, "invalid_unread_filter")
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}
