package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"resident-intake/internal/auth"
	"resident-intake/internal/config"
	"resident-intake/internal/jobs"
	"resident-intake/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "intakectl dev") {
		t.Errorf("expected version output, got: %s", buf.String())
	}
}

func TestRootCmd_ListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, sub := range []string{"migrate", "jobs", "token"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("root help should list %q", sub)
		}
	}
}

func TestJobsListCmd_Flags(t *testing.T) {
	cmd := newJobsListCmd()
	for _, name := range []string{"property", "status", "limit", "json"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
	if got := cmd.Flags().Lookup("status").DefValue; got != "failed" {
		t.Errorf("status default = %q, want failed", got)
	}
}

func TestJobsListCmd_RejectsUnknownStatus(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"jobs", "list", "--property", "P1", "--status", "weird"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRunMigrate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec(store.Schema).WillReturnResult(sqlmock.NewResult(0, 0))

	buf := new(bytes.Buffer)
	if err := runMigrate(context.Background(), buf, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(buf.String(), "Schema applied") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunMigrate_Error(t *testing.T) {
	db, mock, _ := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	defer db.Close()
	mock.ExpectExec(store.Schema).WillReturnError(errors.New("permission denied"))

	if err := runMigrate(context.Background(), new(bytes.Buffer), db); err == nil {
		t.Fatal("expected error")
	}
}

func failedJob(t *testing.T) (*jobs.Queue, *jobs.MemoryRepo, jobs.Job) {
	t.Helper()
	ctx := context.Background()
	repo := jobs.NewMemoryRepo()
	q := jobs.NewQueue(repo)
	j, err := q.EnqueueMessage(ctx, "P1", "+60123456789", jobs.MessagePayload{Text: "leak"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, err := repo.ClaimNextForPhone(ctx, "P1", "+60123456789"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := repo.MarkFailed(ctx, j.ID, "handler exploded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	return q, repo, j
}

func TestRunJobsList_Table(t *testing.T) {
	q, _, j := failedJob(t)

	buf := new(bytes.Buffer)
	if err := runJobsList(context.Background(), buf, q, "P1", jobs.StatusFailed, 10, false); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, j.ID) || !strings.Contains(out, "handler exploded") {
		t.Errorf("unexpected table: %s", out)
	}

	buf.Reset()
	if err := runJobsList(context.Background(), buf, q, "P1", jobs.StatusDone, 10, false); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "No done jobs") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestRunJobsList_JSON(t *testing.T) {
	q, _, j := failedJob(t)

	buf := new(bytes.Buffer)
	if err := runJobsList(context.Background(), buf, q, "P1", jobs.StatusFailed, 10, true); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), `"id": "`+j.ID+`"`) {
		t.Errorf("unexpected json: %s", buf.String())
	}
}

type recordedAction struct {
	propertyID, actor, role, phone, message string
}

type fakeAdminLog struct{ actions []recordedAction }

func (f *fakeAdminLog) LogAdminAction(ctx context.Context, propertyID, actorUserID, actorRole, phone, message string) error {
	f.actions = append(f.actions, recordedAction{propertyID, actorUserID, actorRole, phone, message})
	return nil
}

func TestRunJobsRequeue(t *testing.T) {
	q, _, j := failedJob(t)
	trail := &fakeAdminLog{}

	buf := new(bytes.Buffer)
	if err := runJobsRequeue(context.Background(), buf, q, trail, "P1", j.ID, "alice"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, _ := q.Get(context.Background(), "P1", j.ID)
	if got.Status != jobs.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if len(trail.actions) != 1 || trail.actions[0].actor != "alice" || trail.actions[0].phone != "+60123456789" {
		t.Fatalf("unexpected audit: %+v", trail.actions)
	}

	if err := runJobsRequeue(context.Background(), buf, q, trail, "P1", j.ID, "alice"); !errors.Is(err, jobs.ErrNotFailed) {
		t.Fatalf("second requeue err = %v, want ErrNotFailed", err)
	}
	if err := runJobsRequeue(context.Background(), buf, q, trail, "P2", j.ID, "alice"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("other property err = %v, want ErrNotFound", err)
	}
}

func TestRunTokenIssue(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	now := time.Now()

	buf := new(bytes.Buffer)
	if err := runTokenIssue(buf, m, tokenOptions{UserID: "u1", PropertyID: "P1", Role: "manager"}, now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(strings.TrimSpace(buf.String()), auth.TokenTypeAccess, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PropertyID != "P1" || claims.Role != "manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := runTokenIssue(buf, m, tokenOptions{UserID: "u1", PropertyID: "P1", Role: "owner"}, now); err == nil {
		t.Fatal("expected unknown role error")
	}
}
