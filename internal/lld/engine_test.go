package lld_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lldhost/reconciler/internal/core"
	"github.com/lldhost/reconciler/internal/lld"
	"github.com/lldhost/reconciler/internal/store"
)

const lldRuleID = 1
const parentHostID = 100

type fakeLinker struct {
	linked, unlinked map[uint64][]uint64
}

func newFakeLinker() *fakeLinker {
	return &fakeLinker{linked: map[uint64][]uint64{}, unlinked: map[uint64][]uint64{}}
}

func (f *fakeLinker) Link(hostID uint64, templateIDs []uint64) error {
	f.linked[hostID] = templateIDs
	return nil
}

func (f *fakeLinker) Unlink(hostID uint64, templateIDs []uint64) error {
	f.unlinked[hostID] = templateIDs
	return nil
}

type fakeDeleter struct {
	deleted []uint64
}

func (f *fakeDeleter) DeleteHosts(hostIDs []uint64) error {
	f.deleted = append(f.deleted, hostIDs...)
	return nil
}

func newTestDriver(t *testing.T) (*core.Engine, *store.Driver) {
	t.Helper()
	engine, err := core.NewEngine(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	if _, err := engine.Exec("INSERT INTO hosts (hostid, host, name) VALUES (?, 'parent', 'parent')", parentHostID); err != nil {
		t.Fatalf("seed parent host: %v", err)
	}
	if _, err := engine.Exec("INSERT INTO items (itemid, hostid) VALUES (?, ?)", lldRuleID, parentHostID); err != nil {
		t.Fatalf("seed lld rule: %v", err)
	}
	return engine, store.New(engine)
}

func seedPrototype(t *testing.T, engine *core.Engine, hostID uint64, hostProto, nameProto string, inventoryMode int) {
	t.Helper()
	_, err := engine.Exec(
		`INSERT INTO host_prototype (hostid, lld_ruleid, host_proto, name_proto, status, inventory_mode)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		hostID, lldRuleID, hostProto, nameProto, inventoryMode)
	if err != nil {
		t.Fatalf("seed prototype: %v", err)
	}
}

func payload(rows ...map[string]string) []byte {
	type doc struct {
		Data []map[string]string `json:"data"`
	}
	b, _ := json.Marshal(doc{Data: rows})
	return b
}

func TestUpdateHostsCreatesNewHost(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "{#VMNAME} instance", -1)

	diags, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "web1"}),
		"", 30, 1000)
	if err != nil {
		t.Fatalf("UpdateHosts: %v", err)
	}
	if diags != "" {
		t.Fatalf("unexpected diagnostics: %s", diags)
	}

	var host, name string
	if err := engine.QueryRow("SELECT host, name FROM hosts WHERE hostid <> ?", parentHostID).Scan(&host, &name); err != nil {
		t.Fatalf("query created host: %v", err)
	}
	if host != "web1" {
		t.Errorf("host = %q, want web1", host)
	}
	if name != "web1 instance" {
		t.Errorf("name = %q, want \"web1 instance\"", name)
	}
}

func TestUpdateHostsDetectsVisibleNameDrift(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "{#VMNAME} v1", -1)

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "web1"}), "", 30, 1000); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, err := engine.Exec("UPDATE host_prototype SET name_proto = '{#VMNAME} v2' WHERE hostid = 200"); err != nil {
		t.Fatalf("update prototype: %v", err)
	}

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "web1"}), "", 30, 2000); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var name string
	if err := engine.QueryRow("SELECT name FROM hosts WHERE hostid <> ?", parentHostID).Scan(&name); err != nil {
		t.Fatalf("query host: %v", err)
	}
	if name != "web1 v2" {
		t.Errorf("name = %q, want \"web1 v2\"", name)
	}
}

func TestUpdateHostsRejectsInBatchDuplicate(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "fixed-host", "", -1)

	diags, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#A}": "1"}, map[string]string{"{#A}": "2"}),
		"", 30, 1000)
	if err != nil {
		t.Fatalf("UpdateHosts: %v", err)
	}
	if diags == "" {
		t.Fatal("expected duplicate-name diagnostics, got none")
	}

	var count int
	if err := engine.QueryRow("SELECT COUNT(*) FROM hosts WHERE hostid <> ?", parentHostID).Scan(&count); err != nil {
		t.Fatalf("count hosts: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one surviving host from the duplicate pair, got %d", count)
	}
}

func TestUpdateHostsRejectsInvalidCharset(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "", -1)

	diags, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "bad/name!"}),
		"", 30, 1000)
	if err != nil {
		t.Fatalf("UpdateHosts: %v", err)
	}
	if diags == "" {
		t.Fatal("expected invalid-hostname diagnostics, got none")
	}

	var count int
	if err := engine.QueryRow("SELECT COUNT(*) FROM hosts WHERE hostid <> ?", parentHostID).Scan(&count); err != nil {
		t.Fatalf("count hosts: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no host created for an invalid name, got %d", count)
	}
}

func TestUpdateHostsAgesOutLostHosts(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "", -1)

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "ghost"}), "", 1, 1000); err != nil {
		t.Fatalf("first run: %v", err)
	}

	deleter := &fakeDeleter{}
	lifetimeDays := 1
	farFuture := int64(1000 + int64(lifetimeDays)*86400 + 3600)
	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), deleter, lldRuleID,
		payload(), "", lifetimeDays, farFuture); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(deleter.deleted) != 1 {
		t.Fatalf("expected exactly one aged-out host deleted, got %v", deleter.deleted)
	}
}

func TestUpdateHostsIsIdempotentOnUnchangedPayload(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "{#VMNAME} instance", -1)

	p := payload(map[string]string{"{#VMNAME}": "web1"})

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID, p, "", 30, 1000); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var hostID uint64
	var host, name string
	if err := engine.QueryRow("SELECT hostid, host, name FROM hosts WHERE hostid <> ?", parentHostID).Scan(&hostID, &host, &name); err != nil {
		t.Fatalf("query host after first run: %v", err)
	}

	deleter := &fakeDeleter{}
	diags, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), deleter, lldRuleID, p, "", 30, 1001)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diags != "" {
		t.Fatalf("expected no diagnostics on a repeat of an unchanged payload, got %s", diags)
	}

	var hostID2 uint64
	var host2, name2 string
	var count int
	if err := engine.QueryRow("SELECT COUNT(*) FROM hosts WHERE hostid <> ?", parentHostID).Scan(&count); err != nil {
		t.Fatalf("count hosts after second run: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one host after replaying an unchanged payload, got %d", count)
	}
	if err := engine.QueryRow("SELECT hostid, host, name FROM hosts WHERE hostid <> ?", parentHostID).Scan(&hostID2, &host2, &name2); err != nil {
		t.Fatalf("query host after second run: %v", err)
	}
	if hostID2 != hostID || host2 != host || name2 != name {
		t.Fatalf("expected host row unchanged by the repeat run: (%d,%q,%q) -> (%d,%q,%q)", hostID, host, name, hostID2, host2, name2)
	}
	if len(deleter.deleted) != 0 {
		t.Fatalf("expected no deletions on a repeat of an unchanged payload, got %v", deleter.deleted)
	}
}

func TestUpdateHostsPropagatesMacroValueChange(t *testing.T) {
	engine, drv := newTestDriver(t)
	seedPrototype(t, engine, 200, "{#VMNAME}", "", -1)
	if _, err := engine.Exec(
		"INSERT INTO hostmacro (hostmacroid, hostid, macro, value) VALUES (9000, ?, '{$ENV}', 'staging')",
		parentHostID); err != nil {
		t.Fatalf("seed macro: %v", err)
	}

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "web1"}), "", 30, 1000); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, err := engine.Exec("UPDATE hostmacro SET value = 'prod' WHERE hostmacroid = 9000"); err != nil {
		t.Fatalf("change parent macro: %v", err)
	}

	if _, err := lld.UpdateHosts(drv, lld.NewJSONParser(), lld.NewMacroSubstituter(), lld.AcceptAllFilter(),
		newFakeLinker(), &fakeDeleter{}, lldRuleID,
		payload(map[string]string{"{#VMNAME}": "web1"}), "", 30, 2000); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var hostID uint64
	if err := engine.QueryRow("SELECT hostid FROM hosts WHERE hostid <> ?", parentHostID).Scan(&hostID); err != nil {
		t.Fatalf("query host: %v", err)
	}

	var value string
	if err := engine.QueryRow("SELECT value FROM hostmacro WHERE hostid = ?", hostID).Scan(&value); err != nil {
		t.Fatalf("query host macro: %v", err)
	}
	if value != "prod" {
		t.Errorf("macro value = %q, want prod", value)
	}
}
