package config

import (
	"path"
	"sort"
	"strings"

	"github.com/harpoon-proxy/harpoon/http/mime"
)

// FilterMode says whether the domain list selects or rejects hosts.
type FilterMode uint8

const (
	FilterInclude FilterMode = iota + 1
	FilterExclude
)

// DomainList separates literal hosts (binary-searched) from wildcard
// patterns (matched one by one).
type DomainList struct {
	exact    []string
	patterns []string
}

func NewDomainList(entries []string) DomainList {
	var list DomainList
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.ContainsAny(entry, "*?") {
			list.patterns = append(list.patterns, entry)
		} else {
			list.exact = append(list.exact, entry)
		}
	}
	sort.Strings(list.exact)

	return list
}

func (l *DomainList) Contains(host string) bool {
	host = strings.ToLower(host)
	idx := sort.SearchStrings(l.exact, host)
	if idx < len(l.exact) && l.exact[idx] == host {
		return true
	}

	for _, pattern := range l.patterns {
		if matched, err := path.Match(pattern, host); err == nil && matched {
			return true
		}
	}

	return false
}

func (l *DomainList) Empty() bool {
	return len(l.exact) == 0 && len(l.patterns) == 0
}

// DomainFilter is a mode plus a list.
type DomainFilter struct {
	Mode FilterMode
	List DomainList
}

func (f *DomainFilter) Contains(host string) bool {
	// hosts arrive as authority strings; the filter operates on the bare
	// name
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}

	matched := f.List.Contains(host)
	if f.Mode == FilterInclude {
		return matched
	}

	return !matched
}

// Policy is the compiled filter the commander applies per request. A nil
// Policy means everything is proxied and logged.
type Policy struct {
	Filter               *DomainFilter
	ExcludedContentTypes []mime.ContentType
	ExcludedExtensions   []string // sorted
	WS                   bool
}

/* Merge rules:
 *      - a local include list always wins over everything else
 *      - otherwise global and local exclusion lists are concatenated,
 *        deduplicated and sorted
 *      - with_ws is the global flag gated by the session's no_ws
 * A session with no filtering at all and WebSocket proxying on compiles
 * to nil.
 */
func Build(local *ProxyArgs, global *Global) *Policy {
	var policy Policy

	if global != nil {
		policy.ExcludedContentTypes = global.ExcludedContentTypes
		policy.ExcludedExtensions = dedupSorted(lowercase(global.ExcludedExtensions))
		policy.WS = global.WithWS != nil && *global.WithWS
	}
	if local != nil && local.NoWS != nil && *local.NoWS {
		policy.WS = false
	}

	policy.Filter = combineFilter(local, global)

	if policy.Filter == nil && policy.ExcludedContentTypes == nil &&
		policy.ExcludedExtensions == nil && policy.WS {
		return nil
	}

	return &policy
}

func combineFilter(local *ProxyArgs, global *Global) *DomainFilter {
	if local != nil && len(local.IncludedDomains) > 0 {
		return &DomainFilter{Mode: FilterInclude, List: NewDomainList(local.IncludedDomains)}
	}

	var excluded []string
	if global != nil {
		excluded = append(excluded, global.ExcludedDomains...)
	}
	if local != nil {
		excluded = append(excluded, local.ExcludedDomains...)
	}
	excluded = dedupSorted(excluded)
	if len(excluded) == 0 {
		return nil
	}

	return &DomainFilter{Mode: FilterExclude, List: NewDomainList(excluded)}
}

// ShouldProxy reports whether traffic for the host is intercepted rather
// than blindly relayed.
func (p *Policy) ShouldProxy(host string) bool {
	return p == nil || p.Filter == nil || p.Filter.Contains(host)
}

// ShouldLog applies the extension and derived content-type exclusions.
func (p *Policy) ShouldLog(ext string) bool {
	if p == nil || ext == "" {
		return true
	}

	ext = strings.ToLower(ext)
	if p.inExcludedExtensions(ext) {
		return false
	}
	if ct, known := mime.Extension[ext]; known {
		return !p.InExcludedContentTypes(ct)
	}

	return true
}

func (p *Policy) InExcludedContentTypes(ct mime.ContentType) bool {
	if p == nil {
		return false
	}
	for _, excluded := range p.ExcludedContentTypes {
		if excluded == ct {
			return true
		}
	}

	return false
}

func (p *Policy) inExcludedExtensions(ext string) bool {
	idx := sort.SearchStrings(p.ExcludedExtensions, ext)
	return idx < len(p.ExcludedExtensions) && p.ExcludedExtensions[idx] == ext
}

func (p *Policy) WithWS() bool {
	return p == nil || p.WS
}

func lowercase(entries []string) []string {
	for i := range entries {
		entries[i] = strings.ToLower(entries[i])
	}

	return entries
}

func dedupSorted(entries []string) []string {
	if len(entries) == 0 {
		return nil
	}
	sort.Strings(entries)
	kept := entries[:1]
	for _, entry := range entries[1:] {
		if entry != kept[len(kept)-1] {
			kept = append(kept, entry)
		}
	}

	return kept
}
