package lld

import (
	"strings"
	"testing"
)

type fakeHostDeleter struct {
	deleted []uint64
}

func (d *fakeHostDeleter) DeleteHosts(hostIDs []uint64) error {
	d.deleted = append(d.deleted, hostIDs...)
	return nil
}

func TestRemoveLostResourcesDeletesPastDeadline(t *testing.T) {
	drv := newFakeDriver()
	deleter := &fakeHostDeleter{}
	h := &Host{HostID: 42, Flags: 0, LastCheck: 100}

	lifetimeDays := 1
	lastcheckNow := int64(100 + int64(lifetimeDays)*86400 + 1)
	if err := RemoveLostResources(drv, deleter, []*Host{h}, lifetimeDays, lastcheckNow); err != nil {
		t.Fatalf("RemoveLostResources: %v", err)
	}
	if len(deleter.deleted) != 1 || deleter.deleted[0] != 42 {
		t.Fatalf("expected host 42 deleted, got %v", deleter.deleted)
	}
}

func TestRemoveLostResourcesRefreshesDiscoveredHost(t *testing.T) {
	drv := newFakeDriver()
	deleter := &fakeHostDeleter{}
	h := &Host{HostID: 42, Flags: FlagDiscovered, LastCheck: 100, TsDelete: 500}

	if err := RemoveLostResources(drv, deleter, []*Host{h}, 30, 1000); err != nil {
		t.Fatalf("RemoveLostResources: %v", err)
	}
	if len(deleter.deleted) != 0 {
		t.Fatalf("expected no deletions for a rediscovered host, got %v", deleter.deleted)
	}

	var sawLastcheckUpdate, sawTsDeleteClear bool
	for _, stmt := range drv.executed {
		if strings.Contains(stmt, "host_discovery SET lastcheck=") {
			sawLastcheckUpdate = true
		}
		if strings.Contains(stmt, "ts_delete=0") {
			sawTsDeleteClear = true
		}
	}
	if !sawLastcheckUpdate {
		t.Errorf("expected a lastcheck refresh statement, got %v", drv.executed)
	}
	if !sawTsDeleteClear {
		t.Errorf("expected ts_delete cleared since it was previously non-zero, got %v", drv.executed)
	}
}

func TestRemoveLostResourcesSchedulesFutureTsDelete(t *testing.T) {
	drv := newFakeDriver()
	deleter := &fakeHostDeleter{}
	lifetimeDays := 30
	h := &Host{HostID: 42, Flags: 0, LastCheck: 1000, TsDelete: 0}

	lastcheckNow := int64(1000 + int64(lifetimeDays)*86400 - 1)
	if err := RemoveLostResources(drv, deleter, []*Host{h}, lifetimeDays, lastcheckNow); err != nil {
		t.Fatalf("RemoveLostResources: %v", err)
	}
	if len(deleter.deleted) != 0 {
		t.Fatalf("expected no deletion before the deadline, got %v", deleter.deleted)
	}
	want := h.LastCheck + int64(lifetimeDays)*86400
	if h.TsDelete != want {
		t.Errorf("h.TsDelete = %d, want %d", h.TsDelete, want)
	}
	if len(drv.executed) != 1 {
		t.Fatalf("expected exactly one ts_delete update statement, got %v", drv.executed)
	}
}

func TestRemoveLostResourcesIgnoresUnsavedHosts(t *testing.T) {
	drv := newFakeDriver()
	deleter := &fakeHostDeleter{}
	h := &Host{HostID: 0, Flags: 0, LastCheck: 0}

	if err := RemoveLostResources(drv, deleter, []*Host{h}, 30, 1000); err != nil {
		t.Fatalf("RemoveLostResources: %v", err)
	}
	if len(deleter.deleted) != 0 || len(drv.executed) != 0 {
		t.Fatalf("expected a never-saved host to be skipped entirely")
	}
}
