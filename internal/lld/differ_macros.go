package lld

import (
	"sort"
	"strconv"
	"strings"
)

// MakeHostMacros mirrors hostmacros_make: seeds new_hostmacros on every
// DISCOVERED host with deep copies of the prototype macro set (id 0), then
// reconciles against the hostmacro table for existing hosts. A stored
// macro not present in the new set is scheduled for deletion; one present
// with an identical value is dropped from the new set (no write needed);
// one with a changed value keeps its existing hostmacroid so the Persister
// emits an UPDATE instead of an INSERT.
func MakeHostMacros(drv Driver, prototypeMacros []*HostMacro, hosts []*Host) ([]uint64, error) {
	var existingIDs []uint64
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		h.NewHostMacros = make([]*HostMacro, len(prototypeMacros))
		for i, m := range prototypeMacros {
			h.NewHostMacros[i] = &HostMacro{Macro: m.Macro, Value: m.Value}
		}
		if h.HostID != 0 {
			existingIDs = append(existingIDs, h.HostID)
		}
	}
	if len(existingIDs) == 0 {
		return nil, nil
	}

	byHostID := make(map[uint64]*Host, len(hosts))
	for _, h := range hosts {
		if h.HostID != 0 {
			byHostID[h.HostID] = h
		}
	}

	var sqlb strings.Builder
	sqlb.WriteString("SELECT hostmacroid, hostid, macro, value FROM hostmacro WHERE")
	drv.AddConditionAlloc(&sqlb, "hostid", existingIDs)

	res, err := drv.Select(sqlb.String())
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var delIDs []uint64
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		macroID, _ := strconv.ParseUint(str(row, 0), 10, 64)
		hostID, _ := strconv.ParseUint(str(row, 1), 10, 64)
		macro := str(row, 2)
		value := str(row, 3)

		h, ok := byHostID[hostID]
		if !ok {
			continue
		}

		idx := -1
		for i, m := range h.NewHostMacros {
			if m.Macro == macro {
				idx = i
				break
			}
		}
		if idx < 0 {
			delIDs = append(delIDs, macroID)
			continue
		}
		if h.NewHostMacros[idx].Value == value {
			h.NewHostMacros = append(h.NewHostMacros[:idx], h.NewHostMacros[idx+1:]...)
			continue
		}
		h.NewHostMacros[idx].HostMacroID = macroID
	}

	sort.Slice(delIDs, func(i, j int) bool { return delIDs[i] < delIDs[j] })
	return delIDs, nil
}
