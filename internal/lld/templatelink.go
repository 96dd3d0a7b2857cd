package lld

// TemplateLinker defers to the external template-copy/unlink subsystem —
// no SQL is emitted by this package for hosts_templates itself.
type TemplateLinker interface {
	Link(hostID uint64, templateIDs []uint64) error
	Unlink(hostID uint64, templateIDs []uint64) error
}

// LinkTemplates mirrors templates_link: for every DISCOVERED host, invoke
// the external link/unlink primitives with the deltas the templates differ
// computed.
func LinkTemplates(linker TemplateLinker, hosts []*Host) error {
	for _, h := range hosts {
		if !h.Flags.Has(FlagDiscovered) {
			continue
		}
		if len(h.LnkTemplateIDs) > 0 {
			if err := linker.Link(h.HostID, h.LnkTemplateIDs); err != nil {
				return err
			}
		}
		if len(h.DelTemplateIDs) > 0 {
			if err := linker.Unlink(h.HostID, h.DelTemplateIDs); err != nil {
				return err
			}
		}
	}
	return nil
}
