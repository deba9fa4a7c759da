package handlers

import (
	"context"

	"questly/internal/models"
	contextutils "questly/internal/utils"
)

// Hand-rolled service mocks shared by the handler tests. Each mock returns
// its configured values, or a sensible zero behavior when unset.

type mockUserService struct {
	users       map[int]*models.User
	premium     map[int]bool
	chatCounts  map[int]int
	chatLimit   int
	lastEvent   *models.SubscriptionEvent
	eventErr    error
	identityErr error
}

func newMockUserService() *mockUserService {
	return &mockUserService{
		users:      make(map[int]*models.User),
		premium:    make(map[int]bool),
		chatCounts: make(map[int]int),
		chatLimit:  20,
	}
}

func (m *mockUserService) GetUserByID(_ context.Context, id int) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", id)
}

func (m *mockUserService) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %q", username)
}

func (m *mockUserService) EnsureUserFromIdentity(_ context.Context, externalID, _ string) (*models.User, error) {
	if m.identityErr != nil {
		return nil, m.identityErr
	}
	for _, user := range m.users {
		if user.ExternalID.Valid && user.ExternalID.String == externalID {
			return user, nil
		}
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "identity %q", externalID)
}

func (m *mockUserService) AuthenticateUser(_ context.Context, username, password string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == username && password == "correct-password" {
			return user, nil
		}
	}
	return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid username or password")
}

func (m *mockUserService) EnsureAdminUserExists(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockUserService) IsPremium(_ context.Context, userID int) (bool, error) {
	if _, ok := m.users[userID]; !ok {
		return false, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", userID)
	}
	return m.premium[userID], nil
}

func (m *mockUserService) ApplySubscriptionEvent(_ context.Context, event *models.SubscriptionEvent) error {
	if m.eventErr != nil {
		return m.eventErr
	}
	m.lastEvent = event
	return nil
}

func (m *mockUserService) IncrementChatUsage(_ context.Context, userID int, _ string) (int, error) {
	if m.chatCounts[userID] >= m.chatLimit {
		return m.chatLimit, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "daily chat limit of %d reached", m.chatLimit)
	}
	m.chatCounts[userID]++
	return m.chatCounts[userID], nil
}

func (m *mockUserService) UpdateLastActive(_ context.Context, _ int) error {
	return nil
}

type mockScheduleService struct {
	schedule    *models.DailySchedule
	ensureErr   error
	rotateErr   error
	generated   int
	generateErr error
}

func (m *mockScheduleService) GenerateSchedule(_ context.Context, _, _ string) (int, error) {
	return m.generated, m.generateErr
}

func (m *mockScheduleService) GetSchedule(_ context.Context, date string) (*models.DailySchedule, error) {
	if m.schedule == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrScheduleNotFound, "no schedule for %s", date)
	}
	return m.schedule, nil
}

func (m *mockScheduleService) EnsureScheduleForDate(_ context.Context, _ string) (*models.DailySchedule, error) {
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	return m.schedule, nil
}

func (m *mockScheduleService) RotateDate(_ context.Context, _ string, _ bool) (*models.DailySchedule, error) {
	if m.rotateErr != nil {
		return nil, m.rotateErr
	}
	return m.schedule, nil
}

func (m *mockScheduleService) RotateNow(_ context.Context, _ bool) (*models.DailySchedule, error) {
	if m.rotateErr != nil {
		return nil, m.rotateErr
	}
	return m.schedule, nil
}

type mockTopicService struct {
	topics    map[string]*models.Topic
	imported  int
	importErr error
}

func newMockTopicService() *mockTopicService {
	return &mockTopicService{topics: make(map[string]*models.Topic)}
}

func (m *mockTopicService) GetTopicByID(_ context.Context, id string) (*models.Topic, error) {
	if topic, ok := m.topics[id]; ok {
		return topic, nil
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrTopicNotFound, "topic %s", id)
}

func (m *mockTopicService) GetActiveTopicsByDifficulty(_ context.Context, difficulty models.Difficulty) ([]*models.Topic, error) {
	var out []*models.Topic
	for _, topic := range m.topics {
		if topic.Difficulty == difficulty && topic.IsActive {
			out = append(out, topic)
		}
	}
	return out, nil
}

func (m *mockTopicService) GetActiveTopicPools(_ context.Context) (map[models.Difficulty][]*models.Topic, error) {
	pools := make(map[models.Difficulty][]*models.Topic)
	for _, topic := range m.topics {
		if topic.IsActive {
			pools[topic.Difficulty] = append(pools[topic.Difficulty], topic)
		}
	}
	return pools, nil
}

func (m *mockTopicService) ImportTopics(_ context.Context, topics []models.Topic) (int, error) {
	if m.importErr != nil {
		return 0, m.importErr
	}
	m.imported += len(topics)
	return len(topics), nil
}

func (m *mockTopicService) SetTopicActive(_ context.Context, _ string, _ bool) error {
	return nil
}

func (m *mockTopicService) ListTopics(_ context.Context, _ bool) ([]*models.Topic, error) {
	var out []*models.Topic
	for _, topic := range m.topics {
		out = append(out, topic)
	}
	return out, nil
}

type mockQuizContentService struct {
	content *models.QuizContent
	err     error
}

func (m *mockQuizContentService) GetQuizContent(_ context.Context, _, _ string) (*models.QuizContent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.content, nil
}

type mockProgressService struct {
	result    *models.PointsResult
	submitErr error
	progress  []*models.UserProgress
	points    *models.UserPoints
	resetErr  error
	resetIDs  []int
}

func (m *mockProgressService) SubmitProgress(_ context.Context, _ int, _, _ string, _, _ int, _ bool) (*models.PointsResult, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.result, nil
}

func (m *mockProgressService) GetProgressForDate(_ context.Context, _ int, _ string) ([]*models.UserProgress, error) {
	return m.progress, nil
}

func (m *mockProgressService) GetUserPoints(_ context.Context, userID int) (*models.UserPoints, error) {
	if m.points != nil {
		return m.points, nil
	}
	return &models.UserPoints{UserID: userID}, nil
}

func (m *mockProgressService) ResetUser(_ context.Context, userID int) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resetIDs = append(m.resetIDs, userID)
	return nil
}

type mockLeaderboardService struct {
	snapshotN   int
	snapshotErr error
	daily       []*models.LeaderboardEntry
	streaks     []*models.StreakEntry
}

func (m *mockLeaderboardService) Snapshot(_ context.Context, _ string) (int, error) {
	return m.snapshotN, m.snapshotErr
}

func (m *mockLeaderboardService) GetDaily(_ context.Context, _ string, _ int) ([]*models.LeaderboardEntry, error) {
	return m.daily, nil
}

func (m *mockLeaderboardService) GetStreaks(_ context.Context, _ int) ([]*models.StreakEntry, error) {
	return m.streaks, nil
}
