package handlers

import (
	"context"
	"strings"
	"testing"
	"time"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/locales"
	"tmps-bot/internal/mediagroups"
	"tmps-bot/internal/postlock"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Mocks ---

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAudio(ctx context.Context, params *telego.SendAudioParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetChatAdministrators(ctx context.Context, params *telego.GetChatAdministratorsParams) ([]telego.ChatMember, error) {
	args := m.Called(ctx, params)
	if members, ok := args.Get(0).([]telego.ChatMember); ok {
		return members, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserRepository is a mock implementing database.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error) {
	args := m.Called(ctx, telegramUserID)
	if user, ok := args.Get(0).(*models.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Exists(ctx context.Context, telegramUserID int64) (bool, error) {
	args := m.Called(ctx, telegramUserID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetChannelID(ctx context.Context, telegramUserID, channelID int64) error {
	args := m.Called(ctx, telegramUserID, channelID)
	return args.Error(0)
}

func (m *MockUserRepository) SetTimezone(ctx context.Context, telegramUserID int64, zone string) error {
	args := m.Called(ctx, telegramUserID, zone)
	return args.Error(0)
}

func (m *MockUserRepository) RecordActivity(ctx context.Context, telegramUserID int64, username, action string) error {
	args := m.Called(ctx, telegramUserID, username, action)
	return args.Error(0)
}

// MockPostRepository is a mock implementing database.PostRepository.
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) AppendMedia(ctx context.Context, id primitive.ObjectID, media models.Media) error {
	args := m.Called(ctx, id, media)
	return args.Error(0)
}

func (m *MockPostRepository) UpdateText(ctx context.Context, id primitive.ObjectID, text string) error {
	args := m.Called(ctx, id, text)
	return args.Error(0)
}

func (m *MockPostRepository) UpdateSchedule(ctx context.Context, id primitive.ObjectID, text string, postAt time.Time) error {
	args := m.Called(ctx, id, text, postAt)
	return args.Error(0)
}

func (m *MockPostRepository) UpdateDate(ctx context.Context, id primitive.ObjectID, postAt time.Time) error {
	args := m.Called(ctx, id, postAt)
	return args.Error(0)
}

func (m *MockPostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPostRepository) FindPendingByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	args := m.Called(ctx, id)
	if post, ok := args.Get(0).(*models.Post); ok {
		return post, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPostRepository) FindPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (*models.Post, error) {
	args := m.Called(ctx, mediaGroupID)
	if post, ok := args.Get(0).(*models.Post); ok {
		return post, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPostRepository) ExistsPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (bool, error) {
	args := m.Called(ctx, mediaGroupID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPostRepository) FindPendingByMessageID(ctx context.Context, telegramUserID int64, messageID int) (*models.Post, error) {
	args := m.Called(ctx, telegramUserID, messageID)
	if post, ok := args.Get(0).(*models.Post); ok {
		return post, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPostRepository) CountPending(ctx context.Context, telegramUserID int64) (int64, error) {
	args := m.Called(ctx, telegramUserID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPostRepository) FindDue(ctx context.Context, from, to time.Time) ([]models.Post, error) {
	args := m.Called(ctx, from, to)
	if posts, ok := args.Get(0).([]models.Post); ok {
		return posts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPostRepository) MarkPosted(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockChannelChecker is a mock implementing ChannelAccessChecker.
type MockChannelChecker struct {
	mock.Mock
}

func (m *MockChannelChecker) IsBotAdmin(ctx context.Context, channelID int64) (bool, error) {
	args := m.Called(ctx, channelID)
	return args.Bool(0), args.Error(1)
}

// --- Test Suite Setup ---

const (
	testUserID    = int64(98765)
	testChatID    = int64(98765)
	testChannelID = int64(-1001234567890)
)

type testHandlerSuite struct {
	mockBot      *MockBot
	mockUserRepo *MockUserRepository
	mockPostRepo *MockPostRepository
	mockChecker  *MockChannelChecker
	locks        *postlock.Registry
	handler      *MessageHandler
}

func setupTestHandlerSuite(t *testing.T) *testHandlerSuite {
	t.Helper()
	locales.Init()

	mockBot := new(MockBot)
	mockUserRepo := new(MockUserRepository)
	mockPostRepo := new(MockPostRepository)
	mockChecker := new(MockChannelChecker)

	locks := postlock.NewRegistry()
	handler := NewMessageHandler(mockUserRepo, mockPostRepo, mediagroups.New(mockPostRepo), locks, mockChecker)

	return &testHandlerSuite{
		mockBot:      mockBot,
		mockUserRepo: mockUserRepo,
		mockPostRepo: mockPostRepo,
		mockChecker:  mockChecker,
		locks:        locks,
		handler:      handler,
	}
}

func commandMessage(text string) telego.Message {
	return telego.Message{
		MessageID: 100,
		Text:      text,
		Chat:      telego.Chat{ID: testChatID},
		From:      &telego.User{ID: testUserID, Username: "tester", LanguageCode: "en"},
	}
}

// expectReply captures the next SendMessage call into dst.
func (s *testHandlerSuite) expectReply(dst *string) {
	s.mockBot.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*dst = args.Get(1).(*telego.SendMessageParams).Text
		}).
		Return(&telego.Message{}, nil).Once()
}

func (s *testHandlerSuite) allowActivityRecording() {
	s.mockUserRepo.On("RecordActivity", mock.Anything, testUserID, "tester", mock.AnythingOfType("string")).
		Return(nil).Maybe()
}

// --- Tests ---

func TestHandleStartRegistersNewUser(t *testing.T) {
	s := setupTestHandlerSuite(t)
	ctx := context.Background()

	s.mockUserRepo.On("Exists", mock.Anything, testUserID).Return(false, nil).Once()
	s.mockUserRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.TelegramUserID == testUserID && u.Username == "tester"
	})).Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleStart(ctx, s.mockBot, commandMessage("/start"))

	require.NoError(t, err)
	assert.Contains(t, reply, "tester")
	s.mockUserRepo.AssertExpectations(t)
	s.mockBot.AssertExpectations(t)
}

func TestHandleStartKnownUserIsNotRecreated(t *testing.T) {
	s := setupTestHandlerSuite(t)

	s.mockUserRepo.On("Exists", mock.Anything, testUserID).Return(true, nil).Once()
	s.allowActivityRecording()
	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleStart(context.Background(), s.mockBot, commandMessage("/start"))

	require.NoError(t, err)
	s.mockUserRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleSetChannelID(t *testing.T) {
	s := setupTestHandlerSuite(t)

	s.mockUserRepo.On("Exists", mock.Anything, testUserID).Return(true, nil).Once()
	s.mockUserRepo.On("SetChannelID", mock.Anything, testUserID, testChannelID).Return(nil).Once()
	s.mockChecker.On("IsBotAdmin", mock.Anything, testChannelID).Return(true, nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleSetChannelID(context.Background(), s.mockBot, commandMessage("/set_channelId -1001234567890"))

	require.NoError(t, err)
	s.mockUserRepo.AssertExpectations(t)
}

func TestHandleSetChannelIDWarnsWhenBotIsNotAdmin(t *testing.T) {
	s := setupTestHandlerSuite(t)

	s.mockUserRepo.On("Exists", mock.Anything, testUserID).Return(true, nil).Once()
	s.mockUserRepo.On("SetChannelID", mock.Anything, testUserID, testChannelID).Return(nil).Once()
	s.mockChecker.On("IsBotAdmin", mock.Anything, testChannelID).Return(false, nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleSetChannelID(context.Background(), s.mockBot, commandMessage("/set_channelId -1001234567890"))

	require.NoError(t, err)
	// The id is stored, the reply carries an extra warning line.
	assert.True(t, strings.Count(reply, "\n") >= 1, "expected a warning appended to the confirmation")
}

func TestHandleSetChannelIDRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"MissingArgument", "/set_channelId"},
		{"NotANumber", "/set_channelId my-channel"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestHandlerSuite(t)
			var reply string
			s.expectReply(&reply)

			err := s.handler.HandleSetChannelID(context.Background(), s.mockBot, commandMessage(tc.text))

			require.NoError(t, err)
			assert.NotEmpty(t, reply)
			s.mockUserRepo.AssertNotCalled(t, "SetChannelID", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleSetTimezone(t *testing.T) {
	s := setupTestHandlerSuite(t)

	var storedZone string
	s.mockUserRepo.On("Exists", mock.Anything, testUserID).Return(true, nil).Once()
	s.mockUserRepo.On("SetTimezone", mock.Anything, testUserID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { storedZone = args.String(2) }).
		Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleSetTimezone(context.Background(), s.mockBot, commandMessage("/set_timezone +2"))

	require.NoError(t, err)
	require.NotEmpty(t, storedZone)

	// The stored identifier must be loadable and sit at UTC+2 right now.
	loc, loadErr := time.LoadLocation(storedZone)
	require.NoError(t, loadErr)
	_, offset := time.Now().In(loc).Zone()
	assert.Equal(t, 2*3600, offset)
}

func TestHandleSetTimezoneRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"MissingArgument", "/set_timezone"},
		{"NotANumber", "/set_timezone Berlin"},
		{"OffsetWithoutZone", "/set_timezone +99"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestHandlerSuite(t)
			var reply string
			s.expectReply(&reply)

			err := s.handler.HandleSetTimezone(context.Background(), s.mockBot, commandMessage(tc.text))

			require.NoError(t, err)
			assert.NotEmpty(t, reply)
			s.mockUserRepo.AssertNotCalled(t, "SetTimezone", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleDeleteRequiresReply(t *testing.T) {
	s := setupTestHandlerSuite(t)
	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleDelete(context.Background(), s.mockBot, commandMessage("/delete"))

	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	s.mockPostRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestHandleDelete(t *testing.T) {
	s := setupTestHandlerSuite(t)
	postID := primitive.NewObjectID()

	msg := commandMessage("/delete")
	msg.ReplyToMessage = &telego.Message{MessageID: 55}

	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 55).
		Return(&models.Post{ID: postID, UserID: testUserID}, nil).Once()
	s.mockPostRepo.On("Delete", mock.Anything, postID).Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleDelete(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	s.mockPostRepo.AssertExpectations(t)
}

func TestHandleDeleteForeignPost(t *testing.T) {
	s := setupTestHandlerSuite(t)

	msg := commandMessage("/delete")
	msg.ReplyToMessage = &telego.Message{MessageID: 55}

	// The lookup is owner scoped, someone else's post is simply not found.
	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 55).
		Return(nil, database.ErrPostNotFound).Once()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleDelete(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	s.mockPostRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// A delete issued while the post's lock is held by a publish in flight must
// wait for the publish and then see the post as already gone.
func TestHandleDeleteWaitsForInFlightPublish(t *testing.T) {
	s := setupTestHandlerSuite(t)
	postID := primitive.NewObjectID()

	msg := commandMessage("/delete")
	msg.ReplyToMessage = &telego.Message{MessageID: 55}

	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 55).
		Return(&models.Post{ID: postID, UserID: testUserID}, nil).Once()
	s.mockPostRepo.On("Delete", mock.Anything, postID).Return(database.ErrPostNotFound).Once()

	var reply string
	s.expectReply(&reply)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.locks.Do(postID, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan error, 1)
	go func() {
		done <- s.handler.HandleDelete(context.Background(), s.mockBot, msg)
	}()

	select {
	case <-done:
		t.Fatal("delete finished while the post lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("delete never finished after the lock was released")
	}
	assert.NotEmpty(t, reply)
	s.mockPostRepo.AssertExpectations(t)
}

func TestHandleEditText(t *testing.T) {
	s := setupTestHandlerSuite(t)
	postID := primitive.NewObjectID()

	msg := commandMessage("/edit_text brand new text")
	msg.ReplyToMessage = &telego.Message{MessageID: 77}

	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 77).
		Return(&models.Post{ID: postID, UserID: testUserID}, nil).Once()
	s.mockPostRepo.On("UpdateText", mock.Anything, postID, "brand new text").Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleEditText(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	s.mockPostRepo.AssertExpectations(t)
}

func TestHandleEditTextStripsBotMention(t *testing.T) {
	s := setupTestHandlerSuite(t)
	postID := primitive.NewObjectID()

	msg := commandMessage("/edit_text@tmps_bot brand new text")
	msg.ReplyToMessage = &telego.Message{MessageID: 77}

	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 77).
		Return(&models.Post{ID: postID, UserID: testUserID}, nil).Once()
	s.mockPostRepo.On("UpdateText", mock.Anything, postID, "brand new text").Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleEditText(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	s.mockPostRepo.AssertExpectations(t)
}

func TestHandleEditDate(t *testing.T) {
	s := setupTestHandlerSuite(t)
	postID := primitive.NewObjectID()

	msg := commandMessage("/edit_date 20-12-2030 18:00")
	msg.ReplyToMessage = &telego.Message{MessageID: 88}

	s.mockUserRepo.On("GetByTelegramID", mock.Anything, testUserID).
		Return(&models.User{TelegramUserID: testUserID, ChannelID: testChannelID, TimeZone: "UTC"}, nil).Once()
	s.mockPostRepo.On("FindPendingByMessageID", mock.Anything, testUserID, 88).
		Return(&models.Post{ID: postID, UserID: testUserID}, nil).Once()
	s.mockPostRepo.On("UpdateDate", mock.Anything, postID, time.Date(2030, 12, 20, 18, 0, 0, 0, time.UTC)).
		Return(nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleEditDate(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	s.mockPostRepo.AssertExpectations(t)
}

func TestHandleEditDateRejectsPast(t *testing.T) {
	s := setupTestHandlerSuite(t)

	msg := commandMessage("/edit_date 01-01-2020 00:00")
	msg.ReplyToMessage = &telego.Message{MessageID: 88}

	s.mockUserRepo.On("GetByTelegramID", mock.Anything, testUserID).
		Return(&models.User{TelegramUserID: testUserID, ChannelID: testChannelID, TimeZone: "UTC"}, nil).Once()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleEditDate(context.Background(), s.mockBot, msg)

	require.NoError(t, err)
	s.mockPostRepo.AssertNotCalled(t, "UpdateDate", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRemainingPosts(t *testing.T) {
	s := setupTestHandlerSuite(t)

	s.mockPostRepo.On("CountPending", mock.Anything, testUserID).Return(int64(3), nil).Once()
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleRemainingPosts(context.Background(), s.mockBot, commandMessage("/remaining_posts"))

	require.NoError(t, err)
	assert.Contains(t, reply, "3")
}

func TestHandleHelpListsEveryCommand(t *testing.T) {
	s := setupTestHandlerSuite(t)
	s.allowActivityRecording()

	var reply string
	s.expectReply(&reply)

	err := s.handler.HandleHelp(context.Background(), s.mockBot, commandMessage("/help"))

	require.NoError(t, err)
	for _, cmd := range s.handler.Commands() {
		assert.Contains(t, reply, "/"+cmd.Command)
	}
}

func TestGetCommandHandler(t *testing.T) {
	s := setupTestHandlerSuite(t)

	assert.NotNil(t, s.handler.GetCommandHandler("start"))
	assert.NotNil(t, s.handler.GetCommandHandler("set_channelId"))
	assert.NotNil(t, s.handler.GetCommandHandler("set_channelid"), "command lookup should ignore case")
	assert.Nil(t, s.handler.GetCommandHandler("frobnicate"))
}

func TestIsCommandMessage(t *testing.T) {
	photo := []telego.PhotoSize{{FileID: "p", Width: 1, Height: 1}}

	tests := []struct {
		name    string
		message telego.Message
		want    bool
	}{
		{"SlashText", telego.Message{Text: "/start"}, true},
		{"PlainText", telego.Message{Text: "hello"}, false},
		{"EmptyText", telego.Message{}, false},
		{"SlashCaptionOnPhoto", telego.Message{Text: "/delete", Photo: photo}, false},
		{"SlashWithLocation", telego.Message{Text: "/start", Location: &telego.Location{}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsCommandMessage(tc.message))
		})
	}
}

func TestCommandToken(t *testing.T) {
	assert.Equal(t, "start", CommandToken("/start"))
	assert.Equal(t, "set_channelId", CommandToken("/set_channelId -100123"))
	assert.Equal(t, "help", CommandToken("/help@tmps_bot some trailing words"))
	assert.Equal(t, "", CommandToken("   "))
}
