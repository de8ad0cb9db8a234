package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/memdump-analysis/pkg/model"
)

// TaskRepository mocks repository.TaskRepository.
type TaskRepository struct {
	mock.Mock
}

func (m *TaskRepository) CreateTask(ctx context.Context, task *model.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *TaskRepository) GetPendingTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	args := m.Called(ctx, limit)
	return first[[]*model.Task](args), args.Error(1)
}

func (m *TaskRepository) GetTaskByID(ctx context.Context, id int64) (*model.Task, error) {
	args := m.Called(ctx, id)
	return first[*model.Task](args), args.Error(1)
}

func (m *TaskRepository) GetTaskByUUID(ctx context.Context, uuid string) (*model.Task, error) {
	args := m.Called(ctx, uuid)
	return first[*model.Task](args), args.Error(1)
}

func (m *TaskRepository) UpdateAnalysisStatus(ctx context.Context, id int64, status model.AnalysisStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *TaskRepository) UpdateAnalysisStatusWithInfo(ctx context.Context, id int64, status model.AnalysisStatus, info string) error {
	return m.Called(ctx, id, status, info).Error(0)
}

func (m *TaskRepository) LockTaskForAnalysis(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// ExpectPoll expects a pending-task query for up to limit tasks.
func (m *TaskRepository) ExpectPoll(limit int, tasks []*model.Task, err error) *mock.Call {
	return m.On("GetPendingTasks", mock.Anything, limit).Return(tasks, err)
}

// ExpectClaim expects task id to be locked, with the given outcome.
func (m *TaskRepository) ExpectClaim(id int64, claimed bool, err error) *mock.Call {
	return m.On("LockTaskForAnalysis", mock.Anything, id).Return(claimed, err)
}

// ExpectRelease expects task id to go back to pending.
func (m *TaskRepository) ExpectRelease(id int64) *mock.Call {
	return m.On("UpdateAnalysisStatus", mock.Anything, id, model.AnalysisStatusPending).Return(nil)
}

// ExpectFail expects task id to be marked failed with info.
func (m *TaskRepository) ExpectFail(id int64, info string) *mock.Call {
	return m.On("UpdateAnalysisStatusWithInfo", mock.Anything, id, model.AnalysisStatusFailed, info).Return(nil)
}

// SuggestionRepository mocks repository.SuggestionRepository.
type SuggestionRepository struct {
	mock.Mock
}

func (m *SuggestionRepository) SaveSuggestions(ctx context.Context, suggestions []model.Suggestion) error {
	return m.Called(ctx, suggestions).Error(0)
}

func (m *SuggestionRepository) GetSuggestionsByTaskUUID(ctx context.Context, taskUUID string) ([]model.Suggestion, error) {
	args := m.Called(ctx, taskUUID)
	return first[[]model.Suggestion](args), args.Error(1)
}

func (m *SuggestionRepository) GetAnalysisRules(ctx context.Context) ([]model.SuggestionRule, error) {
	args := m.Called(ctx)
	return first[[]model.SuggestionRule](args), args.Error(1)
}

// ExpectRules makes GetAnalysisRules return rules and err.
func (m *SuggestionRepository) ExpectRules(rules []model.SuggestionRule, err error) *mock.Call {
	return m.On("GetAnalysisRules", mock.Anything).Return(rules, err)
}
