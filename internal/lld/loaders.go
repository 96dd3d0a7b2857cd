package lld

import (
	"fmt"
	"sort"
	"strconv"
)

// HostPrototype is one row of host_prototype: a single prototype owned by
// an LLD rule, independent from the rule's own parent host.
type HostPrototype struct {
	HostID        uint64
	LLDRuleID     uint64
	HostProto     string
	NameProto     string
	Status        int
	InventoryMode InventoryMode
}

// loadParentHost mirrors the items-join lookup at the top of
// DBlld_update_hosts: resolve the host that owns the LLD rule itself,
// supplying proxy/ipmi configuration shared by every prototype under it.
func loadParentHost(drv Driver, lldRuleID uint64) (*ParentHost, error) {
	res, err := drv.Select(
		`SELECT h.hostid, h.proxy_hostid, h.ipmi_authtype, h.ipmi_privilege, h.ipmi_username,
		        h.ipmi_password, h.status
		   FROM items i
		   JOIN hosts h ON h.hostid = i.hostid
		  WHERE i.itemid = `+strconv.FormatUint(lldRuleID, 10))
	if err != nil {
		return nil, fmt.Errorf("load parent host: %w", err)
	}
	defer res.Close()

	row, ok := res.Next()
	if !ok {
		return nil, fmt.Errorf("load parent host: lld rule %d not found", lldRuleID)
	}

	p := &ParentHost{
		IPMIUsername: str(row, 4),
		IPMIPassword: str(row, 5),
	}
	p.HostID, _ = strconv.ParseUint(str(row, 0), 10, 64)
	if !isNull(row, 1) {
		id, _ := strconv.ParseUint(str(row, 1), 10, 64)
		p.ProxyHostID = id
	}
	p.IPMIAuthType, _ = strconv.Atoi(str(row, 2))
	p.IPMIPrivilege, _ = strconv.Atoi(str(row, 3))
	p.Status, _ = strconv.Atoi(str(row, 6))
	return p, nil
}

// loadHostPrototypes returns every host_prototype owned by lldRuleID,
// mirroring the original's loop over all prototypes discovered by one rule.
func loadHostPrototypes(drv Driver, lldRuleID uint64) ([]*HostPrototype, error) {
	res, err := drv.Select(
		`SELECT hostid, host_proto, name_proto, status, inventory_mode
		   FROM host_prototype WHERE lld_ruleid = `+strconv.FormatUint(lldRuleID, 10))
	if err != nil {
		return nil, fmt.Errorf("load host prototypes: %w", err)
	}
	defer res.Close()

	var protos []*HostPrototype
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		hp := &HostPrototype{LLDRuleID: lldRuleID, HostProto: str(row, 1), NameProto: str(row, 2)}
		hp.HostID, _ = strconv.ParseUint(str(row, 0), 10, 64)
		hp.Status, _ = strconv.Atoi(str(row, 3))
		mode, _ := strconv.Atoi(str(row, 4))
		hp.InventoryMode = InventoryMode(mode)
		protos = append(protos, hp)
	}
	return protos, nil
}

// loadHosts mirrors DBlld_hosts_get: every previously discovered host for
// one prototype. host_discovery.host holds the host prototype string the
// host was created from (or last renamed from) and is read into
// Host.HostProto for the Matcher. Update flags are pre-computed here by comparing the
// stored proxy/ipmi quadruple against the values the parent host currently
// carries; DISCOVERED/UPDATE_HOST/UPDATE_NAME are left clear for the
// Matcher to set fresh each run.
func loadHosts(drv Driver, prototypeHostID uint64, parent *ParentHost) ([]*Host, error) {
	res, err := drv.Select(
		`SELECT hd.hostid, hd.host, h.host, h.name, hd.lastcheck, hd.ts_delete,
		        hi.inventory_mode, h.proxy_hostid, h.ipmi_authtype, h.ipmi_privilege,
		        h.ipmi_username, h.ipmi_password
		   FROM host_discovery hd
		   JOIN hosts h ON h.hostid = hd.hostid
		   LEFT JOIN host_inventory hi ON hi.hostid = h.hostid
		  WHERE hd.parent_hostid = ` + strconv.FormatUint(prototypeHostID, 10))
	if err != nil {
		return nil, fmt.Errorf("load hosts: %w", err)
	}
	defer res.Close()

	var hosts []*Host
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		h := &Host{
			HostProto: str(row, 1),
			Host:      str(row, 2),
			Name:      str(row, 3),
		}
		h.HostID, _ = strconv.ParseUint(str(row, 0), 10, 64)
		h.LastCheck, _ = strconv.ParseInt(str(row, 4), 10, 64)
		h.TsDelete, _ = strconv.ParseInt(str(row, 5), 10, 64)
		if isNull(row, 6) {
			h.InventoryMode = InventoryDisabled
		} else {
			mode, _ := strconv.Atoi(str(row, 6))
			h.InventoryMode = InventoryMode(mode)
		}

		var storedProxy uint64
		if !isNull(row, 7) {
			storedProxy, _ = strconv.ParseUint(str(row, 7), 10, 64)
		}
		storedAuth, _ := strconv.Atoi(str(row, 8))
		storedPriv, _ := strconv.Atoi(str(row, 9))
		storedUser := str(row, 10)
		storedPass := str(row, 11)

		if parent != nil {
			if storedProxy != parent.ProxyHostID {
				h.Flags |= FlagUpdateProxy
			}
			if storedAuth != parent.IPMIAuthType {
				h.Flags |= FlagUpdateIPMIAuth
			}
			if storedPriv != parent.IPMIPrivilege {
				h.Flags |= FlagUpdateIPMIPriv
			}
			if storedUser != parent.IPMIUsername {
				h.Flags |= FlagUpdateIPMIUser
			}
			if storedPass != parent.IPMIPassword {
				h.Flags |= FlagUpdateIPMIPass
			}
		}

		hosts = append(hosts, h)
	}
	return hosts, nil
}

// loadPrototypeGroupIDs mirrors groups_get: the prototype's static set of
// group ids, sorted ascending.
func loadPrototypeGroupIDs(drv Driver, prototypeHostID uint64) ([]uint64, error) {
	res, err := drv.Select(
		`SELECT groupid FROM group_prototype WHERE hostid = ` + strconv.FormatUint(prototypeHostID, 10) + ` AND groupid IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load prototype groups: %w", err)
	}
	defer res.Close()

	var ids []uint64
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		id, _ := strconv.ParseUint(str(row, 0), 10, 64)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// loadHostMacros mirrors DBlld_hostmacros_get: macros attached directly to
// the parent host (shared verbatim by every discovered host), keyed by the
// parent hostid that owns the LLD rule.
func loadHostMacros(drv Driver, parentHostID uint64) ([]*HostMacro, error) {
	res, err := drv.Select(
		`SELECT hostmacroid, macro, value FROM hostmacro WHERE hostid = ` +
			strconv.FormatUint(parentHostID, 10))
	if err != nil {
		return nil, fmt.Errorf("load host macros: %w", err)
	}
	defer res.Close()

	var macros []*HostMacro
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		m := &HostMacro{Macro: str(row, 1), Value: str(row, 2)}
		m.HostMacroID, _ = strconv.ParseUint(str(row, 0), 10, 64)
		macros = append(macros, m)
	}
	return macros, nil
}

// loadInterfaces mirrors DBlld_interfaces_get: interfaces attached to the
// parent host, copied onto every discovered host at creation time.
func loadInterfaces(drv Driver, parentHostID uint64) ([]*Interface, error) {
	res, err := drv.Select(
		`SELECT type, main, useip, ip, dns, port FROM interface WHERE hostid = ` +
			strconv.FormatUint(parentHostID, 10))
	if err != nil {
		return nil, fmt.Errorf("load interfaces: %w", err)
	}
	defer res.Close()

	var ifaces []*Interface
	for {
		row, ok := res.Next()
		if !ok {
			break
		}
		iface := &Interface{IP: str(row, 3), DNS: str(row, 4), Port: str(row, 5)}
		iface.Type, _ = strconv.Atoi(str(row, 0))
		iface.Main, _ = strconv.Atoi(str(row, 1))
		iface.UseIP, _ = strconv.Atoi(str(row, 2))
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}
