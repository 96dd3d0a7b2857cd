package lld

import (
	"sort"
	"strconv"
	"strings"
)

// MakeGroups mirrors groups_make: seeds new_groupids on every DISCOVERED
// host with the prototype's full group set, then reconciles against
// hosts_groups for existing hosts, returning hostgroupids to delete.
// Auto-discovered memberships (those with a matching group_discovery row)
// are left untouched here; they belong to the group-prototype subsystem.
func MakeGroups(drv Driver, prototypeGroupIDs []uint64, hosts []*Host) ([]uint64, error) {
	var existingIDs []uint64
	for _, h := range hosts {
		if h.Flags.Has(FlagDiscovered) {
			h.NewGroupIDs = append([]uint64(nil), prototypeGroupIDs...)
			if h.HostID != 0 {
				existingIDs = append(existingIDs, h.HostID)
			}
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
	sqlb.WriteString(
		`SELECT hg.hostgroupid, hg.hostid, hg.groupid
		   FROM hosts_groups hg
		   LEFT JOIN group_discovery gd ON gd.groupid = hg.groupid
		  WHERE gd.groupid IS NULL AND`)
	drv.AddConditionAlloc(&sqlb, "hg.hostid", existingIDs)

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
		hostgroupID, _ := strconv.ParseUint(str(row, 0), 10, 64)
		hostID, _ := strconv.ParseUint(str(row, 1), 10, 64)
		groupID, _ := strconv.ParseUint(str(row, 2), 10, 64)

		h, ok := byHostID[hostID]
		if !ok {
			continue
		}
		if idx := indexOf(h.NewGroupIDs, groupID); idx >= 0 {
			h.NewGroupIDs = append(h.NewGroupIDs[:idx], h.NewGroupIDs[idx+1:]...)
		} else {
			delIDs = append(delIDs, hostgroupID)
		}
	}

	for _, h := range hosts {
		sort.Slice(h.NewGroupIDs, func(i, j int) bool { return h.NewGroupIDs[i] < h.NewGroupIDs[j] })
	}
	sort.Slice(delIDs, func(i, j int) bool { return delIDs[i] < delIDs[j] })
	return delIDs, nil
}

func indexOf(ids []uint64, want uint64) int {
	for i, id := range ids {
		if id == want {
			return i
		}
	}
	return -1
}
