package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockpkg "github.com/memdump-analysis/internal/mock"
	"github.com/memdump-analysis/pkg/model"
)

func pendingTask(id int64) *model.Task {
	task := model.NewTask(id, fmt.Sprintf("uuid-%d", id), model.TaskTypeMemoryDump, "traces/t.json")
	task.Status = model.TaskStatusCompleted
	return task
}

func TestNewDatabaseSource_Options(t *testing.T) {
	src, err := CreateSource(&SourceConfig{
		Type:    SourceTypeDB,
		Name:    "primary",
		Enabled: true,
		Options: map[string]interface{}{"poll_interval": "5s", "batch_size": 3},
	})
	require.NoError(t, err)

	db, ok := src.(*DatabaseSource)
	require.True(t, ok)
	assert.Equal(t, "primary", db.Name())
	assert.Equal(t, SourceTypeDB, db.Type())
	assert.Equal(t, 5*time.Second, db.Options().PollInterval)
	assert.Equal(t, 3, db.Options().BatchSize)

	defaults := NewDatabaseSourceWithDeps("d", &DatabaseOptions{}, nil, nil)
	assert.Equal(t, 2*time.Second, defaults.Options().PollInterval)
	assert.Equal(t, 10, defaults.Options().BatchSize)
}

func TestDatabaseSource_StartWithoutRepository(t *testing.T) {
	src := NewDatabaseSourceWithDeps("none", nil, nil, nil)
	require.NoError(t, src.Start(context.Background()))
	require.NoError(t, src.Stop())
	require.NoError(t, src.HealthCheck(context.Background()))
}

func TestDatabaseSource_PollClaimsTasks(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	repo.ExpectPoll(10, []*model.Task{pendingTask(1), pendingTask(2), pendingTask(3)}, nil)
	repo.ExpectClaim(1, true, nil)
	repo.ExpectClaim(2, false, nil)
	repo.ExpectClaim(3, false, errors.New("deadlock"))

	src := NewDatabaseSourceWithDeps("db", nil, repo, nil)
	src.poll(context.Background())

	require.Len(t, src.taskChan, 1)
	event := <-src.taskChan
	assert.Equal(t, int64(1), event.Task.ID)
	assert.Equal(t, model.AnalysisStatusRunning, event.Task.AnalysisStatus)
	assert.Equal(t, SourceTypeDB, event.SourceType)
	assert.Equal(t, "db", event.SourceName)
	assert.NotEmpty(t, event.GetMetadata("locked_at"))
	repo.AssertExpectations(t)
}

func TestDatabaseSource_PollQueryError(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	repo.ExpectPoll(10, nil, errors.New("connection refused"))

	src := NewDatabaseSourceWithDeps("db", nil, repo, nil)
	src.poll(context.Background())
	assert.Empty(t, src.taskChan)
	repo.AssertExpectations(t)
}

func TestDatabaseSource_HealthCheck(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	repo.ExpectPoll(1, nil, nil).Once()
	repo.ExpectPoll(1, nil, errors.New("connection refused")).Once()

	src := NewDatabaseSourceWithDeps("db", nil, repo, nil)
	assert.NoError(t, src.HealthCheck(context.Background()))
	assert.EqualError(t, src.HealthCheck(context.Background()), "connection refused")
	repo.AssertExpectations(t)
}

func TestDatabaseSource_ReleasesWhenChannelFull(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	tasks := []*model.Task{pendingTask(1), pendingTask(2), pendingTask(3)}
	repo.ExpectPoll(1, tasks, nil)
	for _, task := range tasks {
		repo.ExpectClaim(task.ID, true, nil)
	}
	repo.ExpectRelease(3)

	// A batch size of one buffers two events.
	src := NewDatabaseSourceWithDeps("db", &DatabaseOptions{BatchSize: 1}, repo, nil)
	src.poll(context.Background())

	assert.Len(t, src.taskChan, 2)
	repo.AssertExpectations(t)
}

func TestDatabaseSource_StopReleasesBufferedTasks(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	repo.ExpectPoll(10, []*model.Task{pendingTask(4)}, nil).Once()
	repo.ExpectClaim(4, true, nil)
	repo.ExpectRelease(4)

	src := NewDatabaseSourceWithDeps("db", &DatabaseOptions{PollInterval: time.Hour}, repo, nil)
	require.NoError(t, src.Start(context.Background()))

	require.Eventually(t, func() bool { return len(src.taskChan) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, src.Stop())

	assert.Empty(t, src.taskChan)
	repo.AssertExpectations(t)
}

func TestDatabaseSource_AckNackRelease(t *testing.T) {
	repo := &mockpkg.TaskRepository{}
	repo.ExpectFail(7, "PARSE_ERROR: bad trace")
	repo.ExpectRelease(7)

	src := NewDatabaseSourceWithDeps("db", nil, repo, nil)
	event := NewTaskEvent(pendingTask(7), SourceTypeDB, "db")
	ctx := context.Background()

	require.NoError(t, src.Ack(ctx, event))
	require.NoError(t, src.Nack(ctx, event, "PARSE_ERROR: bad trace"))
	require.NoError(t, src.Release(ctx, event))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "UpdateAnalysisStatus", mockpkg.Anything, int64(7), model.AnalysisStatusCompleted)
}

func TestNewTaskEvent_Priority(t *testing.T) {
	task := pendingTask(1)
	assert.Equal(t, 0, NewTaskEvent(task, SourceTypeDB, "db").Priority)

	task.RequestParams.Priority = 4
	event := NewTaskEvent(task, SourceTypeDB, "db")
	assert.Equal(t, 4, event.Priority)
	assert.Equal(t, task.TaskUUID, event.ID)
	assert.Equal(t, "", event.GetMetadata("missing"))
	assert.Equal(t, "v", event.WithMetadata("k", "v").GetMetadata("k"))
}

func TestSourceConfig_Getters(t *testing.T) {
	cfg := &SourceConfig{Options: map[string]interface{}{
		"int":      5,
		"float":    2.0,
		"duration": "150ms",
		"seconds":  3,
		"bad":      "soon",
		"text":     "12",
		"half":     0.5,
	}}

	assert.Equal(t, 5, cfg.GetInt("int", 0))
	assert.Equal(t, 2, cfg.GetInt("float", 0))
	assert.Equal(t, 9, cfg.GetInt("missing", 9))
	assert.Equal(t, 150*time.Millisecond, cfg.GetDuration("duration", 0))
	assert.Equal(t, 3*time.Second, cfg.GetDuration("seconds", 0))
	assert.Equal(t, time.Minute, cfg.GetDuration("bad", time.Minute))
	assert.Equal(t, 7, (&SourceConfig{}).GetInt("x", 7))
	assert.Equal(t, 12, cfg.GetInt("text", 0))
	assert.Equal(t, 4, cfg.GetInt("bad", 4))
	assert.Equal(t, 500*time.Millisecond, cfg.GetDuration("half", 0))
}

func TestCreateSources(t *testing.T) {
	assert.True(t, IsRegistered(SourceTypeDB))
	assert.Contains(t, RegisteredTypes(), SourceTypeDB)

	sources, err := CreateSources([]*SourceConfig{
		{Type: SourceTypeDB, Name: "on", Enabled: true},
		{Type: SourceTypeDB, Name: "off", Enabled: false},
	})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "on", sources[0].Name())

	_, err = CreateSources([]*SourceConfig{{Type: "kafka", Name: "k", Enabled: true}})
	assert.ErrorContains(t, err, "unknown source type")
}
