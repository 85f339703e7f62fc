package service_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

func createGroup(t *testing.T, f *fixture, students ...string) types.Group {
	t.Helper()
	g, err := f.groups.CreateGroup(context.Background(), types.CreateGroupRequest{
		Name:       "Period 3 Chemistry",
		Type:       types.GroupPositive,
		StudentIDs: students,
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return g
}

func TestCreateGroupPass_AllMembers(t *testing.T) {
	f := newFixture(t)
	g := createGroup(t, f, "s1", "s2", "s3")

	passes, err := f.groups.CreateGroupPass(context.Background(), g.ID, "101", "staff1", "gym", "")
	if err != nil {
		t.Fatalf("CreateGroupPass: %v", err)
	}
	if len(passes) != 3 {
		t.Fatalf("expected 3 passes, got %d", len(passes))
	}
	for i, p := range passes {
		if p.StudentID != g.StudentIDs[i] || p.GroupSize != 3 || p.OriginLocationID != "101" {
			t.Errorf("pass %d: %+v", i, p)
		}
	}
}

func TestCreateGroupPass_PartialFailureKeepsCommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := createGroup(t, f, "s1", "s2")
	f.createPass(t, "s2", "")

	passes, err := f.groups.CreateGroupPass(ctx, g.ID, "101", "staff1", "gym", "")
	wantErr(t, err, service.ErrActivePass)
	if len(passes) != 1 || passes[0].StudentID != "s1" {
		t.Fatalf("expected s1's pass to be returned, got %+v", passes)
	}

	open, err := f.passes.OpenPasses(ctx)
	if err != nil {
		t.Fatalf("OpenPasses: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("expected 2 open passes (s2's prior + s1's group pass), got %d", len(open))
	}
}

func TestCreateGroupPass_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.groups.CreateGroupPass(context.Background(), "missing", "101", "staff1", "gym", "")
	wantErr(t, err, service.ErrGroupNotFound)
}

func TestGroupCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := createGroup(t, f, "s1", "s1", " ", "s2")

	if !reflect.DeepEqual(g.StudentIDs, []string{"s1", "s2"}) {
		t.Errorf("members not deduped: %v", g.StudentIDs)
	}

	got, err := f.groups.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if !reflect.DeepEqual(got, g) {
		t.Errorf("GetGroup = %+v, want %+v", got, g)
	}

	assigned, err := f.groups.AssignStudents(ctx, g.ID, []string{"s3", "s1"})
	if err != nil {
		t.Fatalf("AssignStudents: %v", err)
	}
	if !reflect.DeepEqual(assigned.StudentIDs, []string{"s1", "s2", "s3"}) {
		t.Errorf("AssignStudents = %v", assigned.StudentIDs)
	}

	assigned.PermissionOverride = true
	updated, err := f.groups.UpdateGroup(ctx, assigned)
	if err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}
	if !service.HasPermissionOverride(updated) {
		t.Error("expected permission override after update")
	}

	all, err := f.groups.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 group, got %d", len(all))
	}

	if err := f.groups.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	_, err = f.groups.GetGroup(ctx, g.ID)
	wantErr(t, err, service.ErrGroupNotFound)
	wantErr(t, f.groups.DeleteGroup(ctx, g.ID), service.ErrGroupNotFound)
}

func TestCreateGroup_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.groups.CreateGroup(ctx, types.CreateGroupRequest{Type: types.GroupNegative})
	wantErr(t, err, service.ErrInvalidRequest)

	_, err = f.groups.CreateGroup(ctx, types.CreateGroupRequest{Name: "x", Type: "neutral"})
	wantErr(t, err, service.ErrInvalidRequest)

	_, err = f.groups.UpdateGroup(ctx, types.Group{ID: "missing", Name: "x", Type: types.GroupPositive})
	wantErr(t, err, service.ErrGroupNotFound)
}

func TestHasPermissionOverride(t *testing.T) {
	if service.HasPermissionOverride(types.Group{}) {
		t.Error("zero group should not carry an override")
	}
	if !service.HasPermissionOverride(types.Group{PermissionOverride: true}) {
		t.Error("expected override")
	}
}
