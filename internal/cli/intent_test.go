package cli

import "testing"

func TestParseCommandRun(t *testing.T) {
	cmd := ParseCommand("/run 42 payload.json")
	if cmd.Type != CommandRun {
		t.Fatalf("expected CommandRun, got %v", cmd.Type)
	}
	if cmd.LLDRuleID != 42 {
		t.Errorf("expected lld rule 42, got %d", cmd.LLDRuleID)
	}
	if cmd.Path != "payload.json" {
		t.Errorf("expected path payload.json, got %q", cmd.Path)
	}
}

func TestParseCommandRuns(t *testing.T) {
	cmd := ParseCommand("/runs 7")
	if cmd.Type != CommandRuns {
		t.Fatalf("expected CommandRuns, got %v", cmd.Type)
	}
	if cmd.LLDRuleID != 7 {
		t.Errorf("expected lld rule 7, got %d", cmd.LLDRuleID)
	}
}

func TestParseCommandDiag(t *testing.T) {
	cmd := ParseCommand("/diag abc-123")
	if cmd.Type != CommandDiag {
		t.Fatalf("expected CommandDiag, got %v", cmd.Type)
	}
	if cmd.RunID != "abc-123" {
		t.Errorf("expected run id abc-123, got %q", cmd.RunID)
	}
}

func TestParseCommandConfig(t *testing.T) {
	cmd := ParseCommand("/config default_lifetime_days 14")
	if cmd.Type != CommandConfig {
		t.Fatalf("expected CommandConfig, got %v", cmd.Type)
	}
	if cmd.Key != "default_lifetime_days" || cmd.Value != "14" {
		t.Errorf("unexpected key/value: %q/%q", cmd.Key, cmd.Value)
	}
}

func TestParseCommandHelpAndExit(t *testing.T) {
	if ParseCommand("/help").Type != CommandHelp {
		t.Error("expected CommandHelp")
	}
	if ParseCommand("/exit").Type != CommandExit {
		t.Error("expected CommandExit")
	}
	if ParseCommand("/quit").Type != CommandExit {
		t.Error("expected CommandExit for /quit")
	}
}

func TestParseCommandUnknown(t *testing.T) {
	if cmd := ParseCommand("/bogus"); cmd.Type != CommandUnknown {
		t.Errorf("expected CommandUnknown, got %v", cmd.Type)
	}
	if cmd := ParseCommand("not a command"); cmd.Type != CommandUnknown {
		t.Errorf("expected CommandUnknown for bare text, got %v", cmd.Type)
	}
}

func TestParseCommandEmpty(t *testing.T) {
	if cmd := ParseCommand("   "); cmd != nil {
		t.Errorf("expected nil for blank input, got %+v", cmd)
	}
}
