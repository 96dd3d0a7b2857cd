package lld

import "testing"

func TestCheckHostnameRejectsEmpty(t *testing.T) {
	if got := checkHostname("", ""); got == "" {
		t.Fatal("expected empty host to be rejected")
	}
}

func TestCheckHostnameRejectsWhitespaceOnly(t *testing.T) {
	host := NewMacroSubstituter().Substitute("   ", DiscoveryRow{})
	if got := checkHostname(host, ""); got == "" {
		t.Fatal("expected whitespace-only host to be trimmed to empty and rejected")
	}
}

func TestCheckHostnameAcceptsDefaultCharset(t *testing.T) {
	if got := checkHostname("web-01.example_com", ""); got != "" {
		t.Fatalf("expected valid hostname to pass, got %q", got)
	}
}

func TestCheckHostnameRejectsOutOfCharset(t *testing.T) {
	if got := checkHostname("host#1", ""); got == "" {
		t.Fatal("expected '#' to be rejected by default charset")
	}
}

func TestCheckHostnameRejectsMultibyte(t *testing.T) {
	if got := checkHostname("höst", ""); got == "" {
		t.Fatal("expected multibyte rune to be rejected")
	}
}

func TestCheckHostnameHonorsCustomCharset(t *testing.T) {
	if got := checkHostname("host-1", "0-9a-z-"); got != "" {
		t.Fatalf("expected custom charset to accept lowercase+digits+hyphen, got %q", got)
	}
	if got := checkHostname("Host-1", "0-9a-z-"); got == "" {
		t.Fatal("expected custom charset to reject uppercase")
	}
}

func TestValidateVisibleNameRejectsEmptyAndBlank(t *testing.T) {
	if got := validateVisibleName(""); got == "" {
		t.Fatal("expected empty name to be rejected")
	}
	if got := validateVisibleName("   "); got == "" {
		t.Fatal("expected blank name to be rejected")
	}
}

func TestValidateVisibleNameRejectsTooLong(t *testing.T) {
	long := make([]byte, HostNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if got := validateVisibleName(string(long)); got == "" {
		t.Fatal("expected over-length name to be rejected")
	}
}

func TestValidateVisibleNameAcceptsValid(t *testing.T) {
	if got := validateVisibleName("Web Server 01"); got != "" {
		t.Fatalf("expected valid name to pass, got %q", got)
	}
}

func TestExpandCharsetRange(t *testing.T) {
	set := expandCharset("a-c")
	for _, want := range []byte{'a', 'b', 'c'} {
		if !set[want] {
			t.Errorf("expected %q in expanded set", want)
		}
	}
	if set['d'] {
		t.Error("did not expect 'd' in expanded set")
	}
}
