package service_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// CreatePass
// ═══════════════════════════════════════════════════════════════════════════

func TestCreatePass_OpensAtOrigin(t *testing.T) {
	f := newFixture(t)
	p := f.createPass(t, "s1", "")

	if p.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if p.Status != types.StatusOpen {
		t.Errorf("status = %q, want open", p.Status)
	}
	if p.OriginLocationID != "101" || p.CurrentLocationID != "101" {
		t.Errorf("origin/current = %q/%q, want 101/101", p.OriginLocationID, p.CurrentLocationID)
	}
	if p.OpenedAt != f.clock.Now().UnixMilli() {
		t.Errorf("openedAt = %d, want %d", p.OpenedAt, f.clock.Now().UnixMilli())
	}
	if p.ClosedAt != 0 {
		t.Errorf("closedAt should be unset, got %d", p.ClosedAt)
	}
	if p.Type != types.PassRegular || p.GroupSize != 1 {
		t.Errorf("type/groupSize = %q/%d, want regular/1", p.Type, p.GroupSize)
	}

	stored, err := f.passes.GetPassStatus(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetPassStatus: %v", err)
	}
	if stored != p {
		t.Errorf("stored pass differs:\n got %+v\nwant %+v", stored, p)
	}
}

func TestCreatePass_RejectsSecondOpenPass(t *testing.T) {
	f := newFixture(t)
	f.createPass(t, "s1", "")

	_, err := f.passes.CreatePass(context.Background(), types.CreatePassRequest{
		StudentID: "s1", OriginLocationID: "102", IssuedBy: "staff2", InitialDestination: "gym",
	})
	wantErr(t, err, service.ErrActivePass)
	if !strings.Contains(err.Error(), "s1") {
		t.Errorf("error should name the student: %v", err)
	}
}

func TestCreatePass_RejectsDestinationEqualToOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.passes.CreatePass(context.Background(), types.CreatePassRequest{
		StudentID: "s1", OriginLocationID: "101", IssuedBy: "staff1", InitialDestination: "101",
	})
	wantErr(t, err, service.ErrDestinationIsOrigin)

	if n := f.count(t, store.CollectionPasses); n != 0 {
		t.Errorf("expected no pass written, got %d", n)
	}
}

func TestCreatePass_RequiresFields(t *testing.T) {
	f := newFixture(t)
	cases := []types.CreatePassRequest{
		{OriginLocationID: "101", IssuedBy: "staff1", InitialDestination: "gym"},
		{StudentID: "s1", IssuedBy: "staff1", InitialDestination: "gym"},
		{StudentID: "s1", OriginLocationID: "101", InitialDestination: "gym"},
		{StudentID: "s1", OriginLocationID: "101", IssuedBy: "staff1"},
		{StudentID: "s1", OriginLocationID: "101", IssuedBy: "staff1", InitialDestination: "gym", Type: "teleport"},
	}
	for i, req := range cases {
		_, err := f.passes.CreatePass(context.Background(), req)
		if !errors.Is(err, service.ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestCreatePass_AllowedAfterClose(t *testing.T) {
	f := newFixture(t)
	p := f.createPass(t, "s1", "")
	if _, err := f.passes.ClosePass(context.Background(), p.ID); err != nil {
		t.Fatalf("ClosePass: %v", err)
	}
	again := f.createPass(t, "s1", "")
	if again.ID == p.ID {
		t.Error("expected a new pass id")
	}
}

func TestCreatePass_ConcurrentCallsYieldOneOpenPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.passes.CreatePass(ctx, types.CreatePassRequest{
				StudentID: "s1", OriginLocationID: "101", IssuedBy: "staff" + strconv.Itoa(i), InitialDestination: "gym",
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, service.ErrActivePass) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly 1 successful create, got %d", success)
	}
	open, err := f.passes.OpenPasses(ctx)
	if err != nil {
		t.Fatalf("OpenPasses: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("expected 1 open pass, got %d", len(open))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Out / InAction
// ═══════════════════════════════════════════════════════════════════════════

func TestOutThenInAtOrigin_ClosesPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")

	out, err := f.passes.Out(ctx, p.ID, "library")
	if err != nil {
		t.Fatalf("Out: %v", err)
	}
	if out.CurrentLocationID != "library" || out.Status != types.StatusOpen {
		t.Errorf("after out: current=%q status=%q", out.CurrentLocationID, out.Status)
	}

	f.clock.Advance(5 * time.Minute)
	in, err := f.passes.InAction(ctx, p.ID, "101")
	if err != nil {
		t.Fatalf("InAction: %v", err)
	}
	if in.Status != types.StatusClosed {
		t.Errorf("status = %q, want closed", in.Status)
	}
	if in.ClosedAt != f.clock.Now().UnixMilli() {
		t.Errorf("closedAt = %d, want %d", in.ClosedAt, f.clock.Now().UnixMilli())
	}

	legs := f.legs(t, p.ID)
	if len(legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(legs))
	}
	want := []struct {
		dir types.LegDirection
		loc string
	}{{types.DirectionOut, "library"}, {types.DirectionIn, "101"}}
	for i, leg := range legs {
		if leg.LegNumber != i+1 || leg.LegID != strconv.Itoa(i+1) {
			t.Errorf("leg %d: number=%d id=%q", i, leg.LegNumber, leg.LegID)
		}
		if leg.Direction != want[i].dir || leg.LocationID != want[i].loc {
			t.Errorf("leg %d: %s@%s, want %s@%s", i, leg.Direction, leg.LocationID, want[i].dir, want[i].loc)
		}
		if leg.PassID != p.ID || leg.StudentID != "s1" || leg.ActorID != "staff1" {
			t.Errorf("leg %d: bad attribution %+v", i, leg)
		}
	}
}

func TestInAction_AtCurrentNonOriginKeepsPassOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")

	if _, err := f.passes.Out(ctx, p.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}
	in, err := f.passes.InAction(ctx, p.ID, "library")
	if err != nil {
		t.Fatalf("InAction: %v", err)
	}
	if in.Status != types.StatusOpen || in.CurrentLocationID != "library" || in.ClosedAt != 0 {
		t.Errorf("expected open at library, got %+v", in)
	}
	if n := len(f.legs(t, p.ID)); n != 2 {
		t.Errorf("expected 2 legs, got %d", n)
	}
}

func TestInAction_RejectsUnrelatedLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")
	if _, err := f.passes.Out(ctx, p.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}

	_, err := f.passes.InAction(ctx, p.ID, "gym")
	wantErr(t, err, service.ErrInvalidCheckIn)

	if n := len(f.legs(t, p.ID)); n != 1 {
		t.Errorf("rejected in must not append a leg, got %d legs", n)
	}
}

func TestOut_RejectsCurrentLocation(t *testing.T) {
	f := newFixture(t)
	p := f.createPass(t, "s1", "")

	_, err := f.passes.Out(context.Background(), p.ID, "101")
	wantErr(t, err, service.ErrOutToCurrent)
}

func TestOut_UnknownPass(t *testing.T) {
	f := newFixture(t)
	_, err := f.passes.Out(context.Background(), "nope", "library")
	wantErr(t, err, service.ErrPassNotFound)
}

func TestOut_ConcurrentCallsGetUniqueLegNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.passes.Out(ctx, p.ID, "room-"+strconv.Itoa(i)); err != nil {
				t.Errorf("Out %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	legs := f.legs(t, p.ID)
	if len(legs) != callers {
		t.Fatalf("expected %d legs, got %d", callers, len(legs))
	}
	for i, leg := range legs {
		if leg.LegNumber != i+1 {
			t.Errorf("leg %d has number %d", i, leg.LegNumber)
		}
	}
}

// ── Restroom passes ──────────────────────────────────────────────────────────

func TestRestroomPass_OutOnlyToRestroom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", types.PassRestroom)

	_, err := f.passes.Out(ctx, p.ID, "gym")
	wantErr(t, err, service.ErrRestroomDestination)

	if _, err := f.passes.Out(ctx, p.ID, "restroom"); err != nil {
		t.Fatalf("Out to restroom: %v", err)
	}
}

func TestRestroomPass_MustReturnToOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", types.PassRestroom)
	if _, err := f.passes.Out(ctx, p.ID, "restroom"); err != nil {
		t.Fatalf("Out: %v", err)
	}

	_, err := f.passes.InAction(ctx, p.ID, "gym")
	wantErr(t, err, service.ErrRestroomReturn)

	_, err = f.passes.InAction(ctx, p.ID, "restroom")
	wantErr(t, err, service.ErrRestroomReturn)

	closed, err := f.passes.CheckIn(ctx, p.ID, "101")
	if err != nil {
		t.Fatalf("CheckIn at origin: %v", err)
	}
	if closed.Status != types.StatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Close / force close / auto close
// ═══════════════════════════════════════════════════════════════════════════

func TestClosePass_RequiresScheduledLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")
	if _, err := f.passes.Out(ctx, p.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}

	_, err := f.passes.ClosePass(ctx, p.ID)
	wantErr(t, err, service.ErrNotAtScheduledLocation)
}

func TestClosePass_AtOriginThenAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")

	closed, err := f.passes.ReturnPass(ctx, p.ID)
	if err != nil {
		t.Fatalf("ReturnPass: %v", err)
	}
	if closed.Status != types.StatusClosed || closed.ClosedAt == 0 {
		t.Errorf("expected closed with closedAt, got %+v", closed)
	}

	_, err = f.passes.ClosePass(ctx, p.ID)
	wantErr(t, err, service.ErrPassNotOpen)
}

func TestForceClosePass_SkipsLocationCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")
	if _, err := f.passes.Out(ctx, p.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}

	closed, err := f.passes.ForceClosePass(ctx, p.ID)
	if err != nil {
		t.Fatalf("ForceClosePass: %v", err)
	}
	if !closed.ForceClosed || closed.Status != types.StatusClosed || closed.ClosedAt == 0 {
		t.Errorf("expected force-closed pass, got %+v", closed)
	}

	_, err = f.passes.ForceClosePass(ctx, p.ID)
	wantErr(t, err, service.ErrPassNotOpen)
}

func TestAutoClosePassesForStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.passes.AutoClosePassesForStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("AutoClose with no passes: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no passes closed, got %d", len(none))
	}

	p := f.createPass(t, "s1", "")
	other := f.createPass(t, "s2", "")

	closed, err := f.passes.AutoClosePassesForStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("AutoClose: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != p.ID || !closed[0].AutoClosed {
		t.Fatalf("unexpected auto-close result: %+v", closed)
	}

	still, err := f.passes.GetPassStatus(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetPassStatus: %v", err)
	}
	if still.Status != types.StatusOpen {
		t.Errorf("other student's pass should stay open, got %q", still.Status)
	}
}

func TestHandlePeriodChange_WritesAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")

	closed, err := f.passes.HandlePeriodChange(ctx, "s1")
	if err != nil {
		t.Fatalf("HandlePeriodChange: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != p.ID {
		t.Fatalf("unexpected closed passes: %+v", closed)
	}

	entries, err := f.audit.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "periodChange" {
		t.Fatalf("expected one periodChange entry, got %+v", entries)
	}
	data, ok := entries[0].Data.(map[string]any)
	if !ok || data["studentId"] != "s1" {
		t.Errorf("unexpected audit data: %#v", entries[0].Data)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Archive
// ═══════════════════════════════════════════════════════════════════════════

func TestArchivePass_RequiresClosed(t *testing.T) {
	f := newFixture(t)
	p := f.createPass(t, "s1", "")

	_, err := f.passes.ArchivePass(context.Background(), p.ID)
	wantErr(t, err, service.ErrPassNotClosed)
}

func TestArchivePass_SetsArchivedAtOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")
	if _, err := f.passes.Out(ctx, p.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}
	if _, err := f.passes.InAction(ctx, p.ID, "101"); err != nil {
		t.Fatalf("InAction: %v", err)
	}

	f.clock.Advance(48 * time.Hour)
	archived, err := f.passes.ArchivePass(ctx, p.ID)
	if err != nil {
		t.Fatalf("ArchivePass: %v", err)
	}
	if !archived.Archived || archived.ArchivedAt != f.clock.Now().UnixMilli() {
		t.Fatalf("unexpected archive result: %+v", archived)
	}
	first := archived.ArchivedAt

	f.clock.Advance(time.Hour)
	_, err = f.passes.ArchivePass(ctx, p.ID)
	wantErr(t, err, service.ErrAlreadyArchived)

	stored, err := f.passes.GetPassStatus(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPassStatus: %v", err)
	}
	if stored.ArchivedAt != first {
		t.Errorf("archivedAt rewritten: %d != %d", stored.ArchivedAt, first)
	}

	records := f.sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 exported record, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Pass.ID != p.ID || len(rec.Legs) != 2 {
			t.Errorf("unexpected exported record: %+v", rec)
		}
	}
}

func TestArchivePass_ExportFailureLeavesPassUnarchived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	passes := service.NewPassService(f.store, f.audit, service.PassConfig{
		Sink: failingSink{},
		Now:  f.clock.Now,
	}, silentLogger())

	p := f.createPass(t, "s1", "")
	if _, err := passes.ClosePass(ctx, p.ID); err != nil {
		t.Fatalf("ClosePass: %v", err)
	}
	if _, err := passes.ArchivePass(ctx, p.ID); err == nil {
		t.Fatal("expected export error")
	}

	stored, err := passes.GetPassStatus(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPassStatus: %v", err)
	}
	if stored.Archived {
		t.Error("pass should not be archived after a failed export")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Escalated passes and dry-run validation
// ═══════════════════════════════════════════════════════════════════════════

func TestEscalatedPass_RejectsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPass(t, "s1", "")
	if err := f.escalation.UpdatePassStatus(ctx, p.ID, types.EscalationWarning); err != nil {
		t.Fatalf("UpdatePassStatus: %v", err)
	}

	_, err := f.passes.Out(ctx, p.ID, "library")
	wantErr(t, err, service.ErrPassNotOpen)
	_, err = f.passes.InAction(ctx, p.ID, "101")
	wantErr(t, err, service.ErrPassNotOpen)
	_, err = f.passes.ClosePass(ctx, p.ID)
	wantErr(t, err, service.ErrPassNotOpen)
	_, err = f.passes.ForceClosePass(ctx, p.ID)
	wantErr(t, err, service.ErrPassNotOpen)

	stored, err := f.passes.GetPassStatus(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPassStatus: %v", err)
	}
	if stored.Status != types.StatusEscalated || stored.ClosedAt != 0 {
		t.Errorf("expected escalated without closedAt, got %+v", stored)
	}
}

func TestValidateAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	regular := f.createPass(t, "s1", "")
	if _, err := f.passes.Out(ctx, regular.ID, "library"); err != nil {
		t.Fatalf("Out: %v", err)
	}
	restroom := f.createPass(t, "s2", types.PassRestroom)
	closed := f.createPass(t, "s3", "")
	if _, err := f.passes.ClosePass(ctx, closed.ID); err != nil {
		t.Fatalf("ClosePass: %v", err)
	}

	tests := []struct {
		name   string
		passID string
		action types.LegDirection
		target string
		want   bool
	}{
		{"out elsewhere", regular.ID, types.DirectionOut, "gym", true},
		{"out to current", regular.ID, types.DirectionOut, "library", false},
		{"in at current", regular.ID, types.DirectionIn, "library", true},
		{"in at origin", regular.ID, types.DirectionIn, "101", true},
		{"in elsewhere", regular.ID, types.DirectionIn, "gym", false},
		{"restroom out to restroom", restroom.ID, types.DirectionOut, "restroom", true},
		{"restroom out to gym", restroom.ID, types.DirectionOut, "gym", false},
		{"restroom in at origin", restroom.ID, types.DirectionIn, "101", true},
		{"restroom in at gym", restroom.ID, types.DirectionIn, "gym", false},
		{"closed pass", closed.ID, types.DirectionOut, "gym", false},
		{"unknown action", regular.ID, "sideways", "gym", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.passes.ValidateAction(ctx, tt.passID, tt.action, tt.target)
			if err != nil {
				t.Fatalf("ValidateAction: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateAction = %v, want %v", got, tt.want)
			}
		})
	}

	if n := len(f.legs(t, regular.ID)); n != 1 {
		t.Errorf("validation must not write legs, got %d", n)
	}
	if _, err := f.passes.ValidateAction(ctx, "missing", types.DirectionOut, "gym"); !errors.Is(err, service.ErrPassNotFound) {
		t.Errorf("expected ErrPassNotFound, got %v", err)
	}
}
