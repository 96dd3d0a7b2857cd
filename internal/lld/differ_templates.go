package lld

import (
	"sort"
	"strconv"
	"strings"
)

// MakeTemplates mirrors templates_make: reads the prototype's sorted
// hosts_templates set, seeds lnk_templateids on every DISCOVERED host, then
// partitions existing links into "already linked" (removed from
// lnk_templateids, a no-op) and "not in the prototype" (appended to
// del_templateids).
func MakeTemplates(drv Driver, parentHostID uint64, hosts []*Host) error {
	res, err := drv.Select(
		`SELECT templateid FROM hosts_templates WHERE hostid = ` + strconv.FormatUint(parentHostID, 10))
	if err != nil {
		return err
	}
	var prototypeTemplateIDs []uint64
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		id, _ := strconv.ParseUint(str(row, 0), 10, 64)
		prototypeTemplateIDs = append(prototypeTemplateIDs, id)
	}
	res.Close()
	sort.Slice(prototypeTemplateIDs, func(i, j int) bool { return prototypeTemplateIDs[i] < prototypeTemplateIDs[j] })

	var existingIDs []uint64
	for _, h := range hosts {
		if h.Flags.Has(FlagDiscovered) {
			h.LnkTemplateIDs = append([]uint64(nil), prototypeTemplateIDs...)
			if h.HostID != 0 {
				existingIDs = append(existingIDs, h.HostID)
			}
		}
	}
	if len(existingIDs) == 0 {
		return nil
	}

	byHostID := make(map[uint64]*Host, len(hosts))
	for _, h := range hosts {
		if h.HostID != 0 {
			byHostID[h.HostID] = h
		}
	}

	var sqlb strings.Builder
	sqlb.WriteString("SELECT hostid, templateid FROM hosts_templates WHERE")
	drv.AddConditionAlloc(&sqlb, "hostid", existingIDs)

	linkRes, err := drv.Select(sqlb.String())
	if err != nil {
		return err
	}
	defer linkRes.Close()

	for {
		row, ok := linkRes.Next()
		if !ok {
			break
		}
		hostID, _ := strconv.ParseUint(str(row, 0), 10, 64)
		templateID, _ := strconv.ParseUint(str(row, 1), 10, 64)

		h, ok := byHostID[hostID]
		if !ok {
			continue
		}
		if idx := indexOf(h.LnkTemplateIDs, templateID); idx >= 0 {
			h.LnkTemplateIDs = append(h.LnkTemplateIDs[:idx], h.LnkTemplateIDs[idx+1:]...)
		} else {
			h.DelTemplateIDs = append(h.DelTemplateIDs, templateID)
		}
	}

	for _, h := range hosts {
		sort.Slice(h.LnkTemplateIDs, func(i, j int) bool { return h.LnkTemplateIDs[i] < h.LnkTemplateIDs[j] })
		sort.Slice(h.DelTemplateIDs, func(i, j int) bool { return h.DelTemplateIDs[i] < h.DelTemplateIDs[j] })
	}
	return nil
}
