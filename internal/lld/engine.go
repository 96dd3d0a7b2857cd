package lld

import (
	"fmt"
)

// UpdateHosts is the primary entry point, mirroring update_hosts: given one
// LLD rule and a freshly produced discovery payload, it reconciles every
// host prototype owned by that rule against the payload in turn. Returns
// the accumulated validation diagnostics (possibly empty) and a non-nil
// error for the fatal, rule-level failure classes (parent host not
// resolvable, payload malformed) and for any driver/SQL error raised by a
// pipeline phase — per-host validation failures are recoverable and
// surface only in the returned diagnostics string.
func UpdateHosts(
	drv Driver,
	parser DiscoveryParser,
	sub MacroSubstituter,
	filter RecordFilter,
	linker TemplateLinker,
	deleter HostDeleter,
	lldRuleID uint64,
	payload []byte,
	hostnameCharset string,
	lifetimeDays int,
	lastcheckNow int64,
) (string, error) {
	plog := newPhaseLogger(lldRuleID)

	plog.enter("load_parent_host")
	parent, err := loadParentHost(drv, lldRuleID)
	plog.exit("load_parent_host", err)
	if err != nil {
		return "", fmt.Errorf("cannot process lld rule %d: %w", lldRuleID, err)
	}

	plog.enter("load_prototypes")
	prototypes, err := loadHostPrototypes(drv, lldRuleID)
	plog.exit("load_prototypes", err)
	if err != nil {
		return "", fmt.Errorf("cannot process lld rule %d: %w", lldRuleID, err)
	}

	plog.enter("parse_payload")
	allRows, err := parser.Parse(payload)
	plog.exit("parse_payload", err)
	if err != nil {
		return "", fmt.Errorf("cannot process lld rule %d: %w", lldRuleID, err)
	}

	var rows []DiscoveryRow
	for _, row := range allRows {
		if filter.Check(row) {
			rows = append(rows, row)
		}
	}

	plog.enter("load_shared_macros_interfaces")
	macros, err := loadHostMacros(drv, parent.HostID)
	var interfaces []*Interface
	if err == nil {
		interfaces, err = loadInterfaces(drv, parent.HostID)
	}
	plog.exit("load_shared_macros_interfaces", err)
	if err != nil {
		return "", fmt.Errorf("cannot process lld rule %d: %w", lldRuleID, err)
	}

	var diagnostics []string
	for _, prototype := range prototypes {
		errs, err := updateHostsForPrototype(drv, plog, sub, linker, deleter, parent, prototype, macros, interfaces, rows, hostnameCharset, lifetimeDays, lastcheckNow)
		if err != nil {
			return joinDiagnostics(diagnostics), fmt.Errorf("prototype %d: %w", prototype.HostID, err)
		}
		if errs != "" {
			diagnostics = append(diagnostics, errs)
		}
	}

	return joinDiagnostics(diagnostics), nil
}

func joinDiagnostics(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// updateHostsForPrototype runs the full loaders -> matcher -> validator ->
// differs -> persister -> template-linker -> reaper pipeline for one host
// prototype under the rule.
func updateHostsForPrototype(
	drv Driver,
	plog *phaseLogger,
	sub MacroSubstituter,
	linker TemplateLinker,
	deleter HostDeleter,
	parent *ParentHost,
	prototype *HostPrototype,
	prototypeMacros []*HostMacro,
	prototypeInterfaces []*Interface,
	rows []DiscoveryRow,
	hostnameCharset string,
	lifetimeDays int,
	lastcheckNow int64,
) (string, error) {
	plog.enter("load_hosts")
	hosts, err := loadHosts(drv, prototype.HostID, parent)
	plog.exit("load_hosts", err)
	if err != nil {
		return "", err
	}

	prototypeGroupIDs, err := loadPrototypeGroupIDs(drv, prototype.HostID)
	if err != nil {
		return "", err
	}

	plog.enter("match")
	matched := make(map[*Host]bool, len(hosts))
	for _, row := range rows {
		h := MakeHosts(sub, hosts, prototype.HostProto, prototype.NameProto, row, matched)
		if h.HostID == 0 {
			hosts = append(hosts, h)
		}
	}
	plog.exit("match", nil)

	plog.enter("validate")
	errs := ValidateHosts(drv, hosts, hostnameCharset)
	plog.exit("validate", nil)

	plog.enter("differ")
	delHostGroupIDs, err := MakeGroups(drv, prototypeGroupIDs, hosts)
	if err != nil {
		plog.exit("differ", err)
		return errs, err
	}
	delHostMacroIDs, err := MakeHostMacros(drv, prototypeMacros, hosts)
	if err != nil {
		plog.exit("differ", err)
		return errs, err
	}
	if err := MakeTemplates(drv, prototype.HostID, hosts); err != nil {
		plog.exit("differ", err)
		return errs, err
	}
	plog.exit("differ", nil)

	plog.enter("persist")
	err = SaveHosts(drv, parent, prototype, prototypeInterfaces, hosts, delHostGroupIDs, delHostMacroIDs, lastcheckNow)
	plog.exit("persist", err)
	if err != nil {
		return errs, err
	}

	plog.enter("link_templates")
	err = LinkTemplates(linker, hosts)
	plog.exit("link_templates", err)
	if err != nil {
		return errs, err
	}

	plog.enter("reap")
	err = RemoveLostResources(drv, deleter, hosts, lifetimeDays, lastcheckNow)
	plog.exit("reap", err)
	if err != nil {
		return errs, err
	}

	return errs, nil
}
