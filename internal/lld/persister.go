package lld

import (
	"strconv"
	"strings"
)

// SaveHosts mirrors hosts_save: assembles and executes every statement
// needed to persist one reconciliation pass. Execution order follows the
// fixed sequence the Persister owns: new hosts -> new inventories ->
// updates (hosts + hostmacro) -> new group links -> new macros ->
// deletions (groups, macros, inventory updates, inventory deletes) -> new
// interfaces. Ids for each table's new rows are reserved in bulk with one
// drv.GetMaxIDNum call per table, made just before that table's INSERT is
// built (so host rows are already inserted when group, macro and interface
// ids are reserved).
func SaveHosts(drv Driver, parent *ParentHost, prototype *HostPrototype, prototypeInterfaces []*Interface, hosts []*Host, delHostGroupIDs, delHostMacroIDs []uint64, lastcheckNow int64) error {
	newHosts, existingHosts := partitionHosts(hosts)

	if err := assignNewHostIDs(drv, newHosts); err != nil {
		return err
	}
	if err := insertNewHosts(drv, parent, prototype, newHosts, lastcheckNow); err != nil {
		return err
	}
	if err := saveInventoryInserts(drv, prototype, newHosts); err != nil {
		return err
	}
	if err := saveHostUpdates(drv, parent, existingHosts); err != nil {
		return err
	}
	if err := saveHostMacroUpdates(drv, hosts); err != nil {
		return err
	}
	if err := saveGroupInserts(drv, hosts); err != nil {
		return err
	}
	if err := saveMacroInserts(drv, hosts); err != nil {
		return err
	}
	if err := saveDeletions(drv, prototype, hosts, delHostGroupIDs, delHostMacroIDs); err != nil {
		return err
	}
	return saveInterfaces(drv, prototypeInterfaces, newHosts)
}

func partitionHosts(hosts []*Host) (newHosts, existingHosts []*Host) {
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		if h.HostID == 0 {
			newHosts = append(newHosts, h)
		} else {
			existingHosts = append(existingHosts, h)
		}
	}
	return newHosts, existingHosts
}

func assignNewHostIDs(drv Driver, newHosts []*Host) error {
	if len(newHosts) == 0 {
		return nil
	}
	firstID, err := drv.GetMaxIDNum("hosts", len(newHosts))
	if err != nil {
		return err
	}
	for i, h := range newHosts {
		h.HostID = firstID + uint64(i)
	}
	return nil
}

func insertNewHosts(drv Driver, parent *ParentHost, prototype *HostPrototype, newHosts []*Host, lastcheckNow int64) error {
	if len(newHosts) == 0 {
		return nil
	}

	hostRows := make([][]string, len(newHosts))
	discoveryRows := make([][]string, len(newHosts))
	for i, h := range newHosts {
		hostRows[i] = []string{
			strconv.FormatUint(h.HostID, 10),
			quote(drv.Escape(h.Host)),
			quote(drv.Escape(h.Name)),
			drv.SQLIDIns(parent.ProxyHostID),
			strconv.Itoa(parent.IPMIAuthType),
			strconv.Itoa(parent.IPMIPrivilege),
			quote(drv.Escape(parent.IPMIUsername)),
			quote(drv.Escape(parent.IPMIPassword)),
			strconv.Itoa(prototype.Status),
			strconv.FormatInt(int64(FlagDiscoveryCreated), 10),
		}
		discoveryRows[i] = []string{
			strconv.FormatUint(h.HostID, 10),
			strconv.FormatUint(prototype.HostID, 10),
			quote(drv.Escape(h.HostProto)),
			strconv.FormatInt(lastcheckNow, 10),
			"0",
		}
	}

	columns := []string{"hostid", "host", "name", "proxy_hostid", "ipmi_authtype", "ipmi_privilege", "ipmi_username", "ipmi_password", "status", "flags"}
	if sql := buildInsert(drv, "hosts", columns, hostRows); sql != "" {
		if _, err := drv.Execute(sql); err != nil {
			return err
		}
	}
	if sql := buildInsert(drv, "host_discovery", []string{"hostid", "parent_hostid", "host", "lastcheck", "ts_delete"}, discoveryRows); sql != "" {
		if _, err := drv.Execute(sql); err != nil {
			return err
		}
	}
	return nil
}

// saveInventoryInserts handles the disabled -> enabled transition for
// brand new hosts; new hosts always start from InventoryDisabled, so this
// is the only transition that can apply to them (see
// applyInventoryTransitions for the transitions of existing hosts).
func saveInventoryInserts(drv Driver, prototype *HostPrototype, newHosts []*Host) error {
	var rows [][]string
	for _, h := range newHosts {
		if prototype.InventoryMode == InventoryDisabled {
			continue
		}
		rows = append(rows, []string{strconv.FormatUint(h.HostID, 10), strconv.Itoa(int(prototype.InventoryMode))})
		h.InventoryMode = prototype.InventoryMode
	}
	if sql := buildInsert(drv, "host_inventory", []string{"hostid", "inventory_mode"}, rows); sql != "" {
		_, err := drv.Execute(sql)
		return err
	}
	return nil
}

// saveHostUpdates emits the variable-SET-list UPDATE for every field an
// existing host's flags mark dirty, plus the matching host_discovery.host
// update (to the host prototype string) when UPDATE_HOST is set.
// host_inventory transitions are handled by applyInventoryTransitions.
func saveHostUpdates(drv Driver, parent *ParentHost, existingHosts []*Host) error {
	var sqlb strings.Builder
	drv.BeginMultipleUpdate(&sqlb)

	for _, h := range existingHosts {
		var sets []string
		if h.Flags.Has(FlagUpdateHost) {
			sets = append(sets, "host="+quote(drv.Escape(h.Host)))
		}
		if h.Flags.Has(FlagUpdateName) {
			sets = append(sets, "name="+quote(drv.Escape(h.Name)))
		}
		if h.Flags.Has(FlagUpdateProxy) {
			sets = append(sets, "proxy_hostid="+drv.SQLIDIns(parent.ProxyHostID))
		}
		if h.Flags.Has(FlagUpdateIPMIAuth) {
			sets = append(sets, "ipmi_authtype="+strconv.Itoa(parent.IPMIAuthType))
		}
		if h.Flags.Has(FlagUpdateIPMIPriv) {
			sets = append(sets, "ipmi_privilege="+strconv.Itoa(parent.IPMIPrivilege))
		}
		if h.Flags.Has(FlagUpdateIPMIUser) {
			sets = append(sets, "ipmi_username="+quote(drv.Escape(parent.IPMIUsername)))
		}
		if h.Flags.Has(FlagUpdateIPMIPass) {
			sets = append(sets, "ipmi_password="+quote(drv.Escape(parent.IPMIPassword)))
		}
		if len(sets) > 0 {
			sqlb.WriteString("UPDATE hosts SET ")
			sqlb.WriteString(strings.Join(sets, ","))
			sqlb.WriteString(" WHERE hostid=")
			sqlb.WriteString(strconv.FormatUint(h.HostID, 10))
			sqlb.WriteString(";")
		}

		if h.Flags.Has(FlagUpdateHost) {
			sqlb.WriteString("UPDATE host_discovery SET host=")
			sqlb.WriteString(quote(drv.Escape(h.HostProto)))
			sqlb.WriteString(" WHERE hostid=")
			sqlb.WriteString(strconv.FormatUint(h.HostID, 10))
			sqlb.WriteString(";")
		}
	}

	drv.EndMultipleUpdate(&sqlb)
	if sqlb.Len() > 16 {
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}
	return nil
}

func saveHostMacroUpdates(drv Driver, hosts []*Host) error {
	var sqlb strings.Builder
	drv.BeginMultipleUpdate(&sqlb)

	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, m := range h.NewHostMacros {
			if m.HostMacroID == 0 {
				continue
			}
			sqlb.WriteString("UPDATE hostmacro SET value=")
			sqlb.WriteString(quote(drv.Escape(m.Value)))
			sqlb.WriteString(" WHERE hostmacroid=")
			sqlb.WriteString(strconv.FormatUint(m.HostMacroID, 10))
			sqlb.WriteString(";")
		}
	}

	drv.EndMultipleUpdate(&sqlb)
	if sqlb.Len() > 16 {
		_, err := drv.Execute(sqlb.String())
		return err
	}
	return nil
}

func saveGroupInserts(drv Driver, hosts []*Host) error {
	total := 0
	for _, h := range hosts {
		if h.Flags.Has(FlagDiscovered) {
			total += len(h.NewGroupIDs)
		}
	}
	if total == 0 {
		return nil
	}

	firstID, err := drv.GetMaxIDNum("hosts_groups", total)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, total)
	next := firstID
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, groupID := range h.NewGroupIDs {
			rows = append(rows, []string{
				strconv.FormatUint(next, 10),
				strconv.FormatUint(h.HostID, 10),
				strconv.FormatUint(groupID, 10),
			})
			next++
		}
	}

	if sql := buildInsert(drv, "hosts_groups", []string{"hostgroupid", "hostid", "groupid"}, rows); sql != "" {
		_, err := drv.Execute(sql)
		return err
	}
	return nil
}

func saveMacroInserts(drv Driver, hosts []*Host) error {
	total := 0
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, m := range h.NewHostMacros {
			if m.HostMacroID == 0 {
				total++
			}
		}
	}
	if total == 0 {
		return nil
	}

	firstID, err := drv.GetMaxIDNum("hostmacro", total)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, total)
	next := firstID
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		for _, m := range h.NewHostMacros {
			if m.HostMacroID != 0 {
				continue
			}
			m.HostMacroID = next
			rows = append(rows, []string{
				strconv.FormatUint(next, 10),
				strconv.FormatUint(h.HostID, 10),
				quote(drv.Escape(m.Macro)),
				quote(drv.Escape(m.Value)),
			})
			next++
		}
	}

	if sql := buildInsert(drv, "hostmacro", []string{"hostmacroid", "hostid", "macro", "value"}, rows); sql != "" {
		_, err := drv.Execute(sql)
		return err
	}
	return nil
}

func saveDeletions(drv Driver, prototype *HostPrototype, hosts []*Host, delHostGroupIDs, delHostMacroIDs []uint64) error {
	if len(delHostGroupIDs) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("DELETE FROM hosts_groups WHERE")
		drv.AddConditionAlloc(&sqlb, "hostgroupid", delHostGroupIDs)
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}

	if len(delHostMacroIDs) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("DELETE FROM hostmacro WHERE")
		drv.AddConditionAlloc(&sqlb, "hostmacroid", delHostMacroIDs)
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}

	return applyInventoryTransitions(drv, prototype, hosts)
}

// applyInventoryTransitions reconciles every discovered existing host's
// stored inventory_mode with the prototype's target, issuing the
// disabled -> enabled insert, any-enabled -> disabled delete and
// enabled-A -> enabled-B update transitions; the any-enabled ones are out
// of reach of the brand-new-host path in saveInventoryInserts (a fresh host
// is always disabled -> * on its first save).
func applyInventoryTransitions(drv Driver, prototype *HostPrototype, hosts []*Host) error {
	var updates, deletes []uint64

	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) || h.HostID == 0 {
			continue
		}
		current := h.InventoryMode
		target := prototype.InventoryMode

		switch {
		case current == target:
			// no-op
		case current == InventoryDisabled && target != InventoryDisabled:
			// handled for new hosts in saveInventoryInserts; for existing
			// hosts reaching this branch the row needs inserting too.
			if _, err := drv.Execute(
				"INSERT INTO host_inventory (hostid, inventory_mode) VALUES (" +
					strconv.FormatUint(h.HostID, 10) + "," + strconv.Itoa(int(target)) + ")"); err != nil {
				return err
			}
		case current != InventoryDisabled && target == InventoryDisabled:
			deletes = append(deletes, h.HostID)
		default:
			updates = append(updates, h.HostID)
		}
		h.InventoryMode = target
	}

	if len(updates) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("UPDATE host_inventory SET inventory_mode=")
		sqlb.WriteString(strconv.Itoa(int(prototype.InventoryMode)))
		sqlb.WriteString(" WHERE")
		drv.AddConditionAlloc(&sqlb, "hostid", updates)
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}
	if len(deletes) > 0 {
		var sqlb strings.Builder
		sqlb.WriteString("DELETE FROM host_inventory WHERE")
		drv.AddConditionAlloc(&sqlb, "hostid", deletes)
		if _, err := drv.Execute(sqlb.String()); err != nil {
			return err
		}
	}
	return nil
}

func saveInterfaces(drv Driver, prototypeInterfaces []*Interface, newHosts []*Host) error {
	total := len(prototypeInterfaces) * len(newHosts)
	if total == 0 {
		return nil
	}

	firstID, err := drv.GetMaxIDNum("interface", total)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, total)
	next := firstID
	for _, h := range newHosts {
		for _, iface := range prototypeInterfaces {
			rows = append(rows, []string{
				strconv.FormatUint(next, 10),
				strconv.FormatUint(h.HostID, 10),
				strconv.Itoa(iface.Type),
				strconv.Itoa(iface.Main),
				strconv.Itoa(iface.UseIP),
				quote(drv.Escape(iface.IP)),
				quote(drv.Escape(iface.DNS)),
				quote(drv.Escape(iface.Port)),
			})
			next++
		}
	}

	if sql := buildInsert(drv, "interface", []string{"interfaceid", "hostid", "type", "main", "useip", "ip", "dns", "port"}, rows); sql != "" {
		_, err := drv.Execute(sql)
		return err
	}
	return nil
}

// buildInsert assembles a single multi-row INSERT when the driver supports
// it, or one INSERT per row otherwise. Returns "" when rows is empty.
func buildInsert(drv Driver, table string, columns []string, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var sqlb strings.Builder
	if drv.HasMultirowInsert() {
		sqlb.WriteString("INSERT INTO ")
		sqlb.WriteString(table)
		sqlb.WriteString(" (")
		sqlb.WriteString(strings.Join(columns, ","))
		sqlb.WriteString(") VALUES ")
		for i, row := range rows {
			if i != 0 {
				sqlb.WriteByte(',')
			}
			sqlb.WriteByte('(')
			sqlb.WriteString(strings.Join(row, ","))
			sqlb.WriteByte(')')
		}
		sqlb.WriteByte(';')
		return sqlb.String()
	}

	for _, row := range rows {
		sqlb.WriteString("INSERT INTO ")
		sqlb.WriteString(table)
		sqlb.WriteString(" (")
		sqlb.WriteString(strings.Join(columns, ","))
		sqlb.WriteString(") VALUES (")
		sqlb.WriteString(strings.Join(row, ","))
		sqlb.WriteString(");")
	}
	return sqlb.String()
}

func quote(s string) string { return "'" + s + "'" }
