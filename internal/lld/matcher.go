package lld

// MakeHosts mirrors host_make, called once per discovery row. hosts is the
// full set of hosts already discovered under this prototype (as loaded by
// loadHosts); host_proto/name_proto are the prototype's raw templates;
// matched tracks which existing hosts have already been claimed by an
// earlier row in this batch so two rows never resolve to the same host;
// a candidate already carrying FlagDiscovered (including one appended to
// hosts earlier in this same batch) is skipped for the same reason.
//
// Identity is resolved not by re-expanding the prototype's CURRENT
// host_proto and searching for a Host whose stored technical name equals
// it, but by re-expanding each candidate host's own STORED host_proto (the
// template captured when it was created) and comparing the result to its
// own stored technical name. This lets the engine keep recognizing a host
// across runs even after the prototype's host_proto has since been edited:
// on a hit, the prototype's current host_proto is compared against the
// host's stored one, and only then is the technical name recomputed and
// UPDATE_HOST raised.
func MakeHosts(sub MacroSubstituter, hosts []*Host, hostProto, nameProto string, row DiscoveryRow, matched map[*Host]bool) *Host {
	for _, h := range hosts {
		if matched[h] || h.HostProto == "" || h.Flags.Has(FlagDiscovered) {
			continue
		}
		if sub.Substitute(h.HostProto, row) != h.Host {
			continue
		}
		matched[h] = true
		h.Flags |= FlagDiscovered

		if h.HostProto != hostProto {
			newHost := sub.Substitute(hostProto, row)
			if newHost != h.Host {
				old := h.Host
				h.HostOrig = &old
				h.Host = newHost
				h.Flags |= FlagUpdateHost
			}
			h.HostProto = hostProto
		}

		applyDiscoveredName(sub, h, nameProto, row)
		return h
	}

	host := sub.Substitute(hostProto, row)
	name := host
	if nameProto != "" {
		name = sub.Substitute(nameProto, row)
	}

	return &Host{
		HostProto:     hostProto,
		Host:          host,
		Name:          name,
		Flags:         FlagDiscovered,
		InventoryMode: InventoryDisabled,
	}
}

// applyDiscoveredName re-expands name_proto for an already-matched host and
// flags UPDATE_NAME when the visible name changed. There is no stored
// name_proto to compare templates against (only host_proto persists), so
// drift is detected by value comparison alone.
func applyDiscoveredName(sub MacroSubstituter, h *Host, nameProto string, row DiscoveryRow) {
	if nameProto == "" {
		return
	}
	name := sub.Substitute(nameProto, row)
	if name != h.Name {
		old := h.Name
		h.NameOrig = &old
		h.Name = name
		h.Flags |= FlagUpdateName
	}
}
