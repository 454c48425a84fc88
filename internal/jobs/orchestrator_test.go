package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
	"github.com/joseph-ayodele/docflow/internal/events"
	"github.com/joseph-ayodele/docflow/internal/session"
	"github.com/joseph-ayodele/docflow/internal/state"
)

type nextCall struct {
	jobID     string
	sessionID string
	append    bool
}

// fakeProcessor mimics the server: each file has a page count and every
// step appends one row to the server-side table.
type fakeProcessor struct {
	mu        sync.Mutex
	pages     map[string]int
	initErr   map[string]error
	nextErrAt int // fail the n-th split-next call (1-based), 0 disables
	nextErr   error
	emptyDone bool

	jobs   map[string]*fakeJob
	table  entity.Snapshot
	inits  []string
	nexts  []nextCall
	nextID int
}

type fakeJob struct {
	file   string
	total  int
	cursor int
}

func newFakeProcessor(pages map[string]int) *fakeProcessor {
	return &fakeProcessor{pages: pages, initErr: map[string]error{}, jobs: map[string]*fakeJob{}}
}

func (f *fakeProcessor) SplitInit(_ context.Context, up entity.Upload, _ entity.ProcessConfig, _ string) (entity.InitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, up.Name)
	if err := f.initErr[up.Name]; err != nil {
		return entity.InitResult{}, err
	}
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.jobs[id] = &fakeJob{file: up.Name, total: f.pages[up.Name]}
	return entity.InitResult{JobID: id, TotalPages: f.pages[up.Name], SplitNotes: []string{up.Name + " split"}}, nil
}

func (f *fakeProcessor) SplitNext(_ context.Context, jobID, sessionID string, appendRows bool) (entity.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nexts = append(f.nexts, nextCall{jobID: jobID, sessionID: sessionID, append: appendRows})
	if f.nextErrAt > 0 && len(f.nexts) == f.nextErrAt {
		if f.nextErr != nil {
			return entity.StepResult{}, f.nextErr
		}
		return entity.StepResult{}, &common.APIError{Op: "split_next", StatusCode: 500, Detail: "ocr crashed"}
	}
	job := f.jobs[jobID]
	if job.cursor >= job.total {
		return entity.StepResult{Done: true}, nil
	}
	job.cursor++
	row := entity.Row{
		FileKey:    fmt.Sprintf("%s-p%d", job.file, job.cursor),
		FileName:   job.file,
		PageNumber: job.cursor,
		TotalPages: job.total,
		Confidence: 0.9,
		Fields:     entity.NewFields("Name", job.file),
	}
	if !appendRows {
		f.table = nil
	}
	f.table = append(f.table, row)
	done := job.cursor == job.total
	if done && f.emptyDone {
		return entity.StepResult{Done: true}, nil
	}
	return entity.StepResult{
		Done:       done,
		Table:      f.table.Clone(),
		LatestRow:  &row,
		PageNumber: job.cursor,
		TotalPages: job.total,
		PDFPreview: &entity.PreviewCapability{Available: true},
	}, nil
}

type recordingSelector struct {
	sels []entity.Selection
}

func (r *recordingSelector) Select(sel entity.Selection, _ bool) {
	r.sels = append(r.sels, sel)
}

func pdf(name string) entity.Upload {
	return entity.Upload{Name: name, Data: []byte("%PDF-1.4")}
}

func newTestOrchestrator(p Processor) (*Orchestrator, *state.Workspace, *events.Recorder, *recordingSelector) {
	ws := state.NewWorkspace(session.NewManager(nil, session.WithID("sess-1")))
	rec := &events.Recorder{}
	sel := &recordingSelector{}
	return NewOrchestrator(p, ws, nil, WithPublisher(rec), WithSelector(sel)), ws, rec, sel
}

func TestRun_ThreePageFile(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 3})
	orch, ws, rec, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{Engine: "easyocr"})
	require.NoError(t, err)
	assert.Equal(t, constants.RunCompleted, res.Status)

	require.Len(t, proc.nexts, 3)
	assert.Equal(t, []bool{false, true, true}, []bool{proc.nexts[0].append, proc.nexts[1].append, proc.nexts[2].append})
	for _, c := range proc.nexts {
		assert.Equal(t, "sess-1", c.sessionID)
	}

	snaps := events.Of[events.SnapshotProduced](rec)
	require.Len(t, snaps, 3)
	assert.Len(t, snaps[0].Snapshot, 1)
	assert.Len(t, snaps[1].Snapshot, 2)
	assert.Len(t, snaps[2].Snapshot, 3)
	assert.False(t, snaps[0].Done)
	assert.True(t, snaps[2].Done)
	assert.True(t, snaps[0].ExportsEnabled)

	assert.Equal(t, 3, ws.Table.Len())
	assert.Equal(t, []string{"a.pdf split"}, res.SplitNotes)
}

func TestRun_SnapshotsNeverDropRows(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 4})
	orch, _, rec, _ := newTestOrchestrator(proc)

	_, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)

	snaps := events.Of[events.SnapshotProduced](rec)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].Snapshot.Keys()
		cur := snaps[i].Snapshot.Keys()
		assert.Equal(t, prev, cur[:len(prev)])
	}
}

func TestRun_AppendCarriesAcrossFiles(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 1, "b.pdf": 2})
	orch, ws, _, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf"), pdf("b.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunCompleted, res.Status)

	require.Len(t, proc.nexts, 3)
	assert.False(t, proc.nexts[0].append)
	assert.True(t, proc.nexts[1].append)
	assert.True(t, proc.nexts[2].append)
	assert.Equal(t, 3, ws.Table.Len())
}

func TestRun_AppendWhenTableAlreadyPopulated(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 1})
	orch, ws, _, _ := newTestOrchestrator(proc)
	ws.Table.Replace(entity.Snapshot{{FileKey: "old"}})

	_, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	require.Len(t, proc.nexts, 1)
	assert.True(t, proc.nexts[0].append)
}

func TestRun_InitFailureSkipsFile(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 1, "b.pdf": 1})
	proc.initErr["a.pdf"] = &common.APIError{Op: "split_init", StatusCode: 400, Detail: "Uploaded file is empty."}
	orch, _, rec, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf"), pdf("b.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunPartial, res.Status)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "a.pdf", res.Failed[0].FileName)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, proc.inits)
	require.Len(t, proc.nexts, 1)
	assert.False(t, proc.nexts[0].append)

	failed := events.Of[events.FileFailed](rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "Uploaded file is empty.", common.UserMessage(failed[0].Err))
}

func TestRun_StepFailureAbortsRun(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 2, "b.pdf": 1})
	proc.nextErrAt = 2
	orch, _, rec, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf"), pdf("b.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, common.ErrRequestFailed)

	// b.pdf is never started
	assert.Equal(t, []string{"a.pdf"}, proc.inits)

	finished := events.Of[events.RunFinished](rec)
	require.Len(t, finished, 1)
	assert.Equal(t, constants.RunFailed, finished[0].Status)
}

func TestRun_ExpiredJob(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 2})
	proc.nextErrAt = 1
	proc.nextErr = &common.APIError{Op: "split_next", StatusCode: 404, Detail: "Job not found"}
	orch, _, _, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunFailed, res.Status)

	var appErr *common.AppError
	require.True(t, errors.As(res.Err, &appErr))
	assert.Equal(t, "JOB_EXPIRED", appErr.Code)
	assert.True(t, common.IsNotFound(res.Err))
	assert.Contains(t, common.UserMessage(res.Err), "resubmit")

	// other step failures keep the server's message
	proc = newFakeProcessor(map[string]int{"a.pdf": 2})
	proc.nextErrAt = 1
	orch, _, _, _ = newTestOrchestrator(proc)
	res, err = orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ocr crashed", common.UserMessage(res.Err))
}

func TestRun_DoneWithoutPayloadIsNoop(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 2})
	proc.emptyDone = true
	orch, ws, rec, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunCompleted, res.Status)
	assert.Len(t, events.Of[events.SnapshotProduced](rec), 1)
	assert.Equal(t, 1, ws.Table.Len())
}

func TestRun_AutoSelectsLatestRowOnce(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 2})
	orch, ws, _, sel := newTestOrchestrator(proc)

	_, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)

	require.Len(t, sel.sels, 1)
	assert.Equal(t, entity.Selection{FileKey: "a.pdf-p1", Page: 1}, sel.sels[0])
	assert.Equal(t, "a.pdf-p1", ws.Selection().FileKey)

	pc, known := ws.PreviewCapability()
	assert.True(t, known)
	assert.True(t, pc.Available)
}

func TestRun_ValidationHappensBeforeRequests(t *testing.T) {
	proc := newFakeProcessor(nil)
	orch, _, _, _ := newTestOrchestrator(proc)

	_, err := orch.Run(context.Background(), nil, entity.ProcessConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = orch.Run(context.Background(), []entity.Upload{{Name: "notes.txt", Data: []byte("x")}}, entity.ProcessConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = orch.Run(context.Background(), []entity.Upload{{Name: "empty.pdf"}}, entity.ProcessConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Empty(t, proc.inits)
}

func TestRun_AllInitsFail(t *testing.T) {
	proc := newFakeProcessor(map[string]int{"a.pdf": 1})
	proc.initErr["a.pdf"] = errors.New("connection refused")
	orch, _, _, _ := newTestOrchestrator(proc)

	res, err := orch.Run(context.Background(), []entity.Upload{pdf("a.pdf")}, entity.ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, constants.RunFailed, res.Status)
	assert.Error(t, res.Err)
}
