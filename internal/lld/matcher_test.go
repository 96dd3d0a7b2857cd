package lld

import "testing"

func TestMakeHostsCreatesNewHostOnMiss(t *testing.T) {
	sub := NewMacroSubstituter()
	matched := map[*Host]bool{}
	row := DiscoveryRow{"{#A}": "1"}

	h := MakeHosts(sub, nil, "host-{#A}", "Host {#A}", row, matched)

	if h.HostID != 0 {
		t.Fatalf("expected new host, got HostID=%d", h.HostID)
	}
	if h.Host != "host-1" || h.Name != "Host 1" {
		t.Fatalf("unexpected host/name: %q/%q", h.Host, h.Name)
	}
	if !h.Flags.Has(FlagDiscovered) {
		t.Fatal("expected FlagDiscovered on a newly created host")
	}
}

func TestMakeHostsMatchesExistingByStoredProto(t *testing.T) {
	sub := NewMacroSubstituter()
	existing := &Host{HostID: 5, HostProto: "host-{#A}", Host: "host-1", Name: "host-1"}
	hosts := []*Host{existing}
	matched := map[*Host]bool{}
	row := DiscoveryRow{"{#A}": "1"}

	h := MakeHosts(sub, hosts, "host-{#A}", "", row, matched)

	if h != existing {
		t.Fatal("expected the existing host to be returned on a hit")
	}
	if !matched[existing] {
		t.Fatal("expected matched map to record the hit")
	}
	if h.Flags.Has(FlagUpdateHost) {
		t.Fatal("technical name unchanged, UPDATE_HOST should not be set")
	}
}

func TestMakeHostsRecomputesNameOnProtoChange(t *testing.T) {
	sub := NewMacroSubstituter()
	existing := &Host{HostID: 5, HostProto: "old-{#A}", Host: "old-1", Name: "old-1"}
	hosts := []*Host{existing}
	matched := map[*Host]bool{}
	row := DiscoveryRow{"{#A}": "1"}

	h := MakeHosts(sub, hosts, "old-{#A}", "", row, matched)
	if h != existing {
		t.Fatal("expected a match against the stored host_proto")
	}

	// Simulate a fresh run: flags are reloaded as zero from the database.
	existing.Flags = 0
	h2 := MakeHosts(sub, hosts, "new-{#A}", "", row, map[*Host]bool{})
	if h2 != existing {
		t.Fatal("expected identity to still resolve via the host's stored host_proto")
	}
	if h2.Host != "new-1" {
		t.Fatalf("expected technical name to be recomputed to new-1, got %q", h2.Host)
	}
	if h2.HostOrig == nil || *h2.HostOrig != "old-1" {
		t.Fatal("expected HostOrig to preserve the prior technical name")
	}
	if !h2.Flags.Has(FlagUpdateHost) {
		t.Fatal("expected FlagUpdateHost to be set after a host_proto change")
	}
	if h2.HostProto != "new-{#A}" {
		t.Fatalf("expected stored HostProto to be updated, got %q", h2.HostProto)
	}
}

func TestMakeHostsSkipsAlreadyDiscoveredCandidate(t *testing.T) {
	// Regression test: a candidate already marked FlagDiscovered earlier in
	// the same batch (e.g. a host freshly appended by a prior row in this
	// run) must never be matched a second time by a different row that
	// happens to re-expand to the same technical name.
	sub := NewMacroSubstituter()
	alreadyDiscovered := &Host{HostProto: "fixed-host", Host: "fixed-host", Name: "fixed-host", Flags: FlagDiscovered}
	hosts := []*Host{alreadyDiscovered}
	matched := map[*Host]bool{}
	row := DiscoveryRow{"{#A}": "2"}

	h := MakeHosts(sub, hosts, "fixed-host", "", row, matched)

	if h == alreadyDiscovered {
		t.Fatal("a FlagDiscovered candidate must not be matched again within the same batch")
	}
	if h.HostID != 0 {
		t.Fatalf("expected a fresh host to be created, got HostID=%d", h.HostID)
	}
}

func TestApplyDiscoveredNameSetsUpdateNameOnDrift(t *testing.T) {
	sub := NewMacroSubstituter()
	h := &Host{Name: "old name"}
	row := DiscoveryRow{"{#A}": "new"}

	applyDiscoveredName(sub, h, "{#A} name", row)

	if h.Name != "new name" {
		t.Fatalf("expected name to be updated, got %q", h.Name)
	}
	if h.NameOrig == nil || *h.NameOrig != "old name" {
		t.Fatal("expected NameOrig to preserve the prior value")
	}
	if !h.Flags.Has(FlagUpdateName) {
		t.Fatal("expected FlagUpdateName to be set")
	}
}

func TestApplyDiscoveredNameNoopWhenProtoEmpty(t *testing.T) {
	sub := NewMacroSubstituter()
	h := &Host{Name: "old name"}
	applyDiscoveredName(sub, h, "", DiscoveryRow{})

	if h.Name != "old name" || h.Flags.Has(FlagUpdateName) {
		t.Fatal("expected no change when name_proto is empty")
	}
}
