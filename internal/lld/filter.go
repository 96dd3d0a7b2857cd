package lld

import (
	"fmt"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RegexpCondition is one (macro, pattern) pair a discovery row must match
// (or must not match, when Negate is set) to survive lld_check_record.
type RegexpCondition struct {
	Macro   string // e.g. "{#FSTYPE}"
	Pattern string
	Negate  bool
}

// RecordFilter mirrors lld_check_record: a row passes when every condition
// whose macro is present in the row is satisfied. A filter with no
// conditions passes every row.
type RecordFilter interface {
	Check(row DiscoveryRow) bool
}

type regexpFilter struct {
	conditions []RegexpCondition
	cache      *lru.Cache[string, *regexp2.Regexp]
}

// NewRecordFilter compiles conditions up front and returns a RecordFilter
// backed by dlclark/regexp2, which (unlike stdlib regexp/RE2) supports the
// backtracking constructs Zabbix's own regexp engine allows in LLD filter
// expressions (lookahead-based exclusions, backreferences).
func NewRecordFilter(conditions []RegexpCondition) (RecordFilter, error) {
	cache, err := lru.New[string, *regexp2.Regexp](256)
	if err != nil {
		return nil, fmt.Errorf("new record filter: %w", err)
	}

	f := &regexpFilter{conditions: conditions, cache: cache}
	for _, c := range conditions {
		if _, err := f.compile(c.Pattern); err != nil {
			return nil, fmt.Errorf("compile filter pattern %q: %w", c.Pattern, err)
		}
	}
	return f, nil
}

func (f *regexpFilter) compile(pattern string) (*regexp2.Regexp, error) {
	if re, ok := f.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	f.cache.Add(pattern, re)
	return re, nil
}

func (f *regexpFilter) Check(row DiscoveryRow) bool {
	for _, c := range f.conditions {
		value, present := row[c.Macro]
		if !present {
			continue
		}

		re, err := f.compile(c.Pattern)
		if err != nil {
			// Unreachable: every pattern was validated in NewRecordFilter.
			return false
		}

		matched, err := re.MatchString(value)
		if err != nil {
			return false
		}
		if matched == c.Negate {
			return false
		}
	}
	return true
}

// AcceptAllFilter is a RecordFilter with no conditions: every row passes.
func AcceptAllFilter() RecordFilter {
	f, _ := NewRecordFilter(nil)
	return f
}
