package lld

import (
	"fmt"
	"strconv"
	"strings"
)

// invalidate rolls a Host back from a failed validation: an existing host
// (hostid != 0) has the offending field restored from its *_orig companion
// and the matching update flag cleared, so the run leaves that field
// untouched; a new host (hostid == 0) simply loses DISCOVERED, dropping it
// from the batch entirely.
func invalidateHost(h *Host) {
	if h.HostID == 0 {
		h.Flags &^= FlagDiscovered
		return
	}
	if h.HostOrig != nil {
		h.Host = *h.HostOrig
		h.HostOrig = nil
		h.Flags &^= FlagUpdateHost
	}
}

func invalidateName(h *Host) {
	if h.HostID == 0 {
		h.Flags &^= FlagDiscovered
		return
	}
	if h.NameOrig != nil {
		h.Name = *h.NameOrig
		h.NameOrig = nil
		h.Flags &^= FlagUpdateName
	}
}

// ValidateHosts mirrors hosts_validate: four in-memory passes (technical
// validity, visible validity, in-batch technical duplicates, in-batch
// visible duplicates) followed by one combined SQL scan for cross-batch
// duplicates in the live hosts table. Returns the accumulated diagnostic
// lines, one per failure, in the original C error-string's "\n"-joined form.
func ValidateHosts(drv Driver, hosts []*Host, charset string) string {
	var errs []string

	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		if reason := checkHostname(h.Host, charset); reason != "" {
			errs = append(errs, fmt.Sprintf(`Cannot create host: invalid host name "%s" (%s).`, h.Host, reason))
			invalidateHost(h)
		}
	}

	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		if reason := validateVisibleName(h.Name); reason != "" {
			errs = append(errs, fmt.Sprintf(`Cannot create host: invalid host name "%s" (%s).`, h.Name, reason))
			invalidateName(h)
		}
	}

	// In-batch technical-name duplicates. Only hosts still carrying
	// DISCOVERED take part: a host not matched by this run and a new host
	// already invalidated above are both skipped by that one test, whatever
	// other flag bits they carry.
	for i, a := range hosts {
		if !a.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, b := range hosts[i+1:] {
			if !b.Flags.Has(FlagDiscovered) {
				continue
			}
			if a.Host == b.Host {
				errs = append(errs, fmt.Sprintf(`Cannot create host: host with the same name "%s" already exists.`, b.Host))
				invalidateHost(b)
			}
		}
	}

	for i, a := range hosts {
		if !a.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, b := range hosts[i+1:] {
			if !b.Flags.Has(FlagDiscovered) {
				continue
			}
			if a.Name == b.Name {
				errs = append(errs, fmt.Sprintf(`Cannot create host: host with the same visible name "%s" already exists.`, b.Name))
				invalidateName(b)
			}
		}
	}

	if lines := validateAgainstDatabase(drv, hosts); len(lines) > 0 {
		errs = append(errs, lines...)
	}

	return strings.Join(errs, "\n")
}

// validateAgainstDatabase mirrors the cross-batch SQL scan: hosts already
// persisted under a different hostid, sharing either technical or visible
// name, restricted to non-prototype, non-template-excluded statuses.
func validateAgainstDatabase(drv Driver, hosts []*Host) []string {
	var names, visible []string
	var batchIDs []uint64

	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		names = append(names, drv.Escape(h.Host))
		visible = append(visible, drv.Escape(h.Name))
		if h.HostID != 0 {
			batchIDs = append(batchIDs, h.HostID)
		}
	}
	if len(names) == 0 {
		return nil
	}

	var sqlb strings.Builder
	sqlb.WriteString("SELECT host, name FROM hosts WHERE status IN (")
	sqlb.WriteString(strconv.Itoa(HostStatusMonitored))
	sqlb.WriteByte(',')
	sqlb.WriteString(strconv.Itoa(HostStatusNotMonitored))
	sqlb.WriteByte(',')
	sqlb.WriteString(strconv.Itoa(HostStatusTemplate))
	sqlb.WriteString(") AND flags <> ")
	sqlb.WriteString(strconv.Itoa(FlagDiscoveryPrototype))
	sqlb.WriteString(" AND (")
	writeInClause(&sqlb, "host", names)
	sqlb.WriteString(" OR ")
	writeInClause(&sqlb, "name", visible)
	sqlb.WriteString(")")

	if len(batchIDs) > 0 {
		sqlb.WriteString(" AND NOT (")
		drv.AddConditionAlloc(&sqlb, "hostid", batchIDs)
		sqlb.WriteString(")")
	}

	res, err := drv.Select(sqlb.String())
	if err != nil {
		return []string{fmt.Sprintf("Cannot validate hosts: %v", err)}
	}
	defer res.Close()

	existingHost := map[string]bool{}
	existingName := map[string]bool{}
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		existingHost[str(row, 0)] = true
		existingName[str(row, 1)] = true
	}

	var lines []string
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		if existingHost[h.Host] {
			lines = append(lines, fmt.Sprintf(`Cannot create host: host with the same name "%s" already exists.`, h.Host))
			invalidateHost(h)
		}
		if existingName[h.Name] {
			lines = append(lines, fmt.Sprintf(`Cannot create host: host with the same visible name "%s" already exists.`, h.Name))
			invalidateName(h)
		}
	}
	return lines
}

// writeInClause appends "<column> IN ('a','b',...)" or "1=0" if values is
// empty, so an empty side of the OR never short-circuits the whole clause.
func writeInClause(sqlb *strings.Builder, column string, values []string) {
	if len(values) == 0 {
		sqlb.WriteString("1=0")
		return
	}
	sqlb.WriteString(column)
	sqlb.WriteString(" IN (")
	for i, v := range values {
		if i != 0 {
			sqlb.WriteByte(',')
		}
		sqlb.WriteByte('\'')
		sqlb.WriteString(v)
		sqlb.WriteByte('\'')
	}
	sqlb.WriteByte(')')
}
