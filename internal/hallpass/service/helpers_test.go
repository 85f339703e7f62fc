package service_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/archive"
	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store/memory"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeClock is a settable time source shared by every service in a fixture.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store      *memory.Store
	clock      *fakeClock
	sink       *archive.MemorySink
	audit      *service.AuditLog
	passes     *service.PassService
	escalation *service.EscalationService
	groups     *service.GroupService
	locations  *service.LocationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := memory.New()
	clk := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	sink := archive.NewMemorySink()
	audit := service.NewAuditLog(ms, clk.Now)
	passes := service.NewPassService(ms, audit, service.PassConfig{
		RestroomLocationID: "restroom",
		Sink:               sink,
		Now:                clk.Now,
	}, silentLogger())
	return &fixture{
		store:      ms,
		clock:      clk,
		sink:       sink,
		audit:      audit,
		passes:     passes,
		escalation: service.NewEscalationService(ms, nil, clk.Now),
		groups:     service.NewGroupService(ms, passes),
		locations:  service.NewLocationService(ms),
	}
}

func (f *fixture) createPass(t *testing.T, studentID string, passType types.PassType) types.Pass {
	t.Helper()
	p, err := f.passes.CreatePass(context.Background(), types.CreatePassRequest{
		StudentID:          studentID,
		OriginLocationID:   "101",
		IssuedBy:           "staff1",
		InitialDestination: "library",
		Type:               passType,
	})
	if err != nil {
		t.Fatalf("CreatePass(%s): %v", studentID, err)
	}
	return p
}

func (f *fixture) count(t *testing.T, collection string) int {
	t.Helper()
	snaps, err := f.store.Query(context.Background(), collection)
	if err != nil {
		t.Fatalf("Query %s: %v", collection, err)
	}
	return len(snaps)
}

func (f *fixture) legs(t *testing.T, passID string) []types.PassLeg {
	t.Helper()
	legs, err := f.passes.ListLegs(context.Background(), passID)
	if err != nil {
		t.Fatalf("ListLegs: %v", err)
	}
	return legs
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

// failingSink rejects every export.
type failingSink struct{}

func (failingSink) Put(context.Context, archive.Record) error {
	return errors.New("bucket unavailable")
}
