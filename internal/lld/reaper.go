package lld

import (
	"strconv"
	"strings"
)

// HostDeleter is the external delete_hosts primitive: cascading removal of
// a host and everything it owns (groups, macros, interfaces, inventory).
type HostDeleter interface {
	DeleteHosts(hostIDs []uint64) error
}

// executeThreshold mirrors the "16 < sql_offset" guard in the original
// buffered-SQL reaper: a bare BEGIN/END bracket with no statements inside
// it is shorter than this and must not be executed.
const executeThreshold = 16

// RemoveLostResources mirrors remove_lost_resources: ages out hosts that
// were not rediscovered this run and refreshes lastcheck/ts_delete
// bookkeeping for hosts that were. lastcheckNow and lifetimeDays together
// define the deletion boundary: lastcheckNow - lifetimeDays*86400.
func RemoveLostResources(drv Driver, deleter HostDeleter, hosts []*Host, lifetimeDays int, lastcheckNow int64) error {
	lifetimeSec := int64(lifetimeDays) * 86400
	deadline := lastcheckNow - lifetimeSec

	var toDelete, toRefresh, toClearTsDelete []uint64
	var tsDeleteUpdates []*Host

	for _, h := range hosts {
		if h.HostID == 0 {
			continue
		}
		if h.Flags.Has(FlagDiscovered) {
			toRefresh = append(toRefresh, h.HostID)
			if h.TsDelete != 0 {
				toClearTsDelete = append(toClearTsDelete, h.HostID)
			}
			continue
		}

		if h.LastCheck < deadline {
			toDelete = append(toDelete, h.HostID)
			continue
		}
		wantTsDelete := h.LastCheck + lifetimeSec
		if h.TsDelete != wantTsDelete {
			h.TsDelete = wantTsDelete
			tsDeleteUpdates = append(tsDeleteUpdates, h)
		}
	}

	for _, h := range tsDeleteUpdates {
		var sqlb strings.Builder
		sqlb.WriteString("UPDATE host_discovery SET ts_delete=")
		sqlb.WriteString(strconv.FormatInt(h.TsDelete, 10))
		sqlb.WriteString(" WHERE hostid=")
		sqlb.WriteString(strconv.FormatUint(h.HostID, 10))
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}

	if len(toRefresh) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("UPDATE host_discovery SET lastcheck=")
		sqlb.WriteString(strconv.FormatInt(lastcheckNow, 10))
		sqlb.WriteString(" WHERE")
		drv.AddConditionAlloc(&sqlb, "hostid", toRefresh)
		if sqlb.Len() > executeThreshold {
			if _, err := drv.Execute(sqlb.String()); err != nil {
				return err
			}
		}
	}

	if len(toClearTsDelete) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("UPDATE host_discovery SET ts_delete=0 WHERE")
		drv.AddConditionAlloc(&sqlb, "hostid", toClearTsDelete)
		if sqlb.Len() > executeThreshold {
			if _, err := drv.Execute(sqlb.String()); err != nil {
				return err
			}
		}
	}

	if len(toDelete) > 0 {
		return deleter.DeleteHosts(toDelete)
	}
	return nil
}
