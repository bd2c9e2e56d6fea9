package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bsocio/campaign-service/internal/audience"
	"github.com/bsocio/campaign-service/internal/mailer"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeJobs struct {
	jobs       map[string]*model.DispatchJob
	running    []string
	failed     map[string]string
	getErr     error
	runningErr error
}

func newFakeJobs(js ...*model.DispatchJob) *fakeJobs {
	m := map[string]*model.DispatchJob{}
	for _, j := range js {
		m[j.ID] = j
	}
	return &fakeJobs{jobs: m, failed: map[string]string{}}
}

func (f *fakeJobs) Insert(ctx context.Context, tx *sqlx.Tx, j model.DispatchJob) error { return nil }

func (f *fakeJobs) GetByID(ctx context.Context, id string) (*model.DispatchJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.jobs[id], nil
}

func (f *fakeJobs) MarkRunning(ctx context.Context, id string) error {
	if f.runningErr != nil {
		return f.runningErr
	}
	f.running = append(f.running, id)
	return nil
}

func (f *fakeJobs) Checkpoint(ctx context.Context, tx *sqlx.Tx, id string, cursor int64) error {
	return nil
}
func (f *fakeJobs) MarkDone(ctx context.Context, tx *sqlx.Tx, id string) error { return nil }

func (f *fakeJobs) MarkFailed(ctx context.Context, id, cause string) error {
	f.failed[id] = cause
	return nil
}

func (f *fakeJobs) ExistsForCampaign(ctx context.Context, campaignID int64) (bool, error) {
	return false, nil
}

type fakeCampaigns struct {
	campaign *model.Campaign
}

func (f *fakeCampaigns) Create(ctx context.Context, c *model.Campaign) error { return nil }

func (f *fakeCampaigns) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, repository.ErrCampaignNotFound
	}
	return f.campaign, nil
}

func (f *fakeCampaigns) List(ctx context.Context, status model.CampaignStatus, limit, offset int) ([]model.Campaign, int64, error) {
	return nil, 0, nil
}
func (f *fakeCampaigns) Update(ctx context.Context, c *model.Campaign) error { return nil }
func (f *fakeCampaigns) Delete(ctx context.Context, id int64) error          { return nil }
func (f *fakeCampaigns) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id int64, status model.CampaignStatus) error {
	return nil
}
func (f *fakeCampaigns) IncrementTotalSent(ctx context.Context, tx *sqlx.Tx, id int64, n int) error {
	return nil
}
func (f *fakeCampaigns) ClaimDueScheduled(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]model.Campaign, error) {
	return nil, nil
}

type fakeUsers struct {
	users []model.User // ascending by id
}

func (f *fakeUsers) PageAfter(ctx context.Context, fl audience.Filter, cursor int64, limit int) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.ID <= cursor {
			continue
		}
		if fl.IDs != nil && !containsID(fl.IDs, u.ID) {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeUsers) Count(ctx context.Context, fl audience.Filter) (int64, error) {
	rows, err := f.PageAfter(ctx, fl, 0, len(f.users)+1)
	return int64(len(rows)), err
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type checkpointRec struct {
	cursor  int64
	pageLen int
}

type fakeCheckpoints struct {
	records   []checkpointRec
	completed bool
	ckErr     error
}

func (f *fakeCheckpoints) Checkpoint(ctx context.Context, jobID string, campaignID int64, cursor int64, pageLen int) error {
	if f.ckErr != nil {
		return f.ckErr
	}
	f.records = append(f.records, checkpointRec{cursor: cursor, pageLen: pageLen})
	return nil
}

func (f *fakeCheckpoints) Complete(ctx context.Context, jobID string, campaignID int64) error {
	f.completed = true
	return nil
}

type fakeMailer struct {
	sent []string // recipient emails in send order
	fail map[string]error
}

func (f *fakeMailer) Send(ctx context.Context, e mailer.Email) error {
	if err, ok := f.fail[e.To]; ok {
		return err
	}
	f.sent = append(f.sent, e.To)
	return nil
}

type fakeEvents struct {
	batches [][]model.EmailEvent
}

func (f *fakeEvents) InsertBatch(ctx context.Context, events []model.EmailEvent) error {
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeEvents) ListByCampaign(ctx context.Context, campaignID int64, status model.EventStatus, limit, offset int) ([]model.EmailEvent, error) {
	return nil, nil
}

func (f *fakeEvents) CountByStatus(ctx context.Context, campaignID int64) (map[string]int64, error) {
	return nil, nil
}

// ---- helpers ----

func makeUsers(n int) []model.User {
	users := make([]model.User, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, model.User{
			ID:    int64(i),
			Email: fmt.Sprintf("user%d@example.org", i),
		})
	}
	return users
}

func newTestDispatcher(job *model.DispatchJob, c *model.Campaign, users []model.User) (*Dispatcher, *fakeJobs, *fakeCheckpoints, *fakeMailer, *fakeEvents) {
	jobs := newFakeJobs(job)
	cps := &fakeCheckpoints{}
	m := &fakeMailer{}
	evs := &fakeEvents{}

	d := &Dispatcher{
		Jobs:        jobs,
		Campaigns:   &fakeCampaigns{campaign: c},
		Users:       &fakeUsers{users: users},
		Events:      evs,
		Checkpoints: cps,
		Mailer:      m,
		Logger:      zap.NewNop(),
		PageSize:    50,
	}
	return d, jobs, cps, m, evs
}

// ---- tests ----

func TestRunJobPagesCheckpointsAndCompletes(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "<p>hi</p>", Audience: model.AudienceAll}

	d, jobs, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(120))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(jobs.running) != 1 {
		t.Fatalf("expected job marked running once, got %v", jobs.running)
	}

	// 120 recipients at page size 50 = pages of 50, 50, 20
	want := []checkpointRec{
		{cursor: 50, pageLen: 50},
		{cursor: 100, pageLen: 50},
		{cursor: 120, pageLen: 20},
	}
	if len(cps.records) != len(want) {
		t.Fatalf("expected %d checkpoints, got %d: %+v", len(want), len(cps.records), cps.records)
	}
	for i, w := range want {
		if cps.records[i] != w {
			t.Errorf("checkpoint %d = %+v, want %+v", i, cps.records[i], w)
		}
	}
	if !cps.completed {
		t.Error("expected job completed")
	}

	if len(m.sent) != 120 {
		t.Fatalf("expected 120 sends, got %d", len(m.sent))
	}
	// strictly ascending id order
	if m.sent[0] != "user1@example.org" || m.sent[119] != "user120@example.org" {
		t.Errorf("send order wrong: first=%s last=%s", m.sent[0], m.sent[119])
	}
}

func TestRunJobExactPageBoundary(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}

	d, _, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(100))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	// two full pages; the trailing empty fetch must not checkpoint
	if len(cps.records) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d: %+v", len(cps.records), cps.records)
	}
	if len(m.sent) != 100 {
		t.Errorf("expected 100 sends, got %d", len(m.sent))
	}
	if !cps.completed {
		t.Error("expected job completed")
	}
}

func TestRunJobResumesAfterCursor(t *testing.T) {
	cursor := int64(50)
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending, Cursor: &cursor}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}

	d, _, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(120))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	// resumes strictly after id 50: 70 remaining = pages of 50, 20
	if len(m.sent) != 70 {
		t.Fatalf("expected 70 sends after resume, got %d", len(m.sent))
	}
	if m.sent[0] != "user51@example.org" {
		t.Errorf("first send after resume = %s, want user51", m.sent[0])
	}
	want := []checkpointRec{
		{cursor: 100, pageLen: 50},
		{cursor: 120, pageLen: 20},
	}
	for i, w := range want {
		if cps.records[i] != w {
			t.Errorf("checkpoint %d = %+v, want %+v", i, cps.records[i], w)
		}
	}
}

func TestRunJobSendFailureDoesNotStopPage(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}

	d, _, cps, m, evs := newTestDispatcher(job, campaign, makeUsers(10))
	m.fail = map[string]error{
		"user3@example.org": errors.New("550 mailbox unavailable"),
	}

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(m.sent) != 9 {
		t.Fatalf("expected 9 successful sends, got %d", len(m.sent))
	}
	// total_sent counts attempted recipients, failures included
	if len(cps.records) != 1 || cps.records[0].pageLen != 10 {
		t.Fatalf("expected one checkpoint of pageLen 10, got %+v", cps.records)
	}
	if !cps.completed {
		t.Error("expected job completed despite the failure")
	}

	if len(evs.batches) != 1 {
		t.Fatalf("expected one event batch, got %d", len(evs.batches))
	}
	var failed int
	for _, ev := range evs.batches[0] {
		if ev.Status == model.EventFailed {
			failed++
			if ev.UserID != 3 {
				t.Errorf("failed event for user %d, want 3", ev.UserID)
			}
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly one failed event, got %d", failed)
	}
}

func TestRunJobManualAudienceSubset(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{
		ID:            7,
		Subject:       "hi",
		Content:       "x",
		Audience:      model.AudienceManual,
		TargetUserIDs: pq.Int64Array{2, 5, 9},
	}

	d, _, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(10))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	want := []string{"user2@example.org", "user5@example.org", "user9@example.org"}
	if len(m.sent) != len(want) {
		t.Fatalf("sent = %v, want %v", m.sent, want)
	}
	for i := range want {
		if m.sent[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, m.sent[i], want[i])
		}
	}
	if cps.records[len(cps.records)-1].cursor != 9 {
		t.Errorf("final cursor = %d, want 9", cps.records[len(cps.records)-1].cursor)
	}
}

func TestRunJobEmptyManualCompletesWithNoWork(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceManual}

	d, _, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(10))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(m.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(m.sent))
	}
	if len(cps.records) != 0 {
		t.Errorf("expected no checkpoints, got %+v", cps.records)
	}
	if !cps.completed {
		t.Error("expected job completed as a clean no-op")
	}
}

func TestRunJobAlreadyDoneSkips(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobDone}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}

	d, jobs, cps, m, _ := newTestDispatcher(job, campaign, makeUsers(10))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(jobs.running) != 0 || len(m.sent) != 0 || len(cps.records) != 0 || cps.completed {
		t.Error("completed job must be a no-op on redelivery")
	}
}

func TestRunJobUnknownJobSkips(t *testing.T) {
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}
	d, _, cps, m, _ := newTestDispatcher(&model.DispatchJob{ID: "other"}, campaign, makeUsers(5))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(m.sent) != 0 || cps.completed {
		t.Error("unknown job must be skipped without side effects")
	}
}

func TestRunJobCampaignGoneCompletes(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 404, Status: model.JobPending}

	d, _, cps, m, _ := newTestDispatcher(job, nil, makeUsers(5))

	if err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 404}); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(m.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(m.sent))
	}
	if !cps.completed {
		t.Error("job for a deleted campaign must complete with no work")
	}
}

func TestRunJobCheckpointFailurePropagates(t *testing.T) {
	job := &model.DispatchJob{ID: "job-1", CampaignID: 7, Status: model.JobPending}
	campaign := &model.Campaign{ID: 7, Subject: "hi", Content: "x", Audience: model.AudienceAll}

	d, _, cps, _, _ := newTestDispatcher(job, campaign, makeUsers(10))
	cps.ckErr = errors.New("db down")

	err := d.RunJob(context.Background(), model.Envelope{JobID: "job-1", CampaignID: 7})
	if err == nil {
		t.Fatal("expected checkpoint failure to propagate")
	}
	if cps.completed {
		t.Error("job must not complete after a failed checkpoint")
	}
}
