// Package ispdir maps raw ISP names reported by external providers to
// bilingual canonical names using a tab-delimited dictionary loaded once at
// start-up.
package ispdir

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
)

// SubBrandRule tags a carrier's canonical name when the reverse hostname
// contains a known sub-brand marker. Rules are checked in slice order and
// the first match wins.
type SubBrandRule struct {
	HostSubstring string
	Tag           string
}

// CarrierRule scopes a set of sub-brand rules to one canonical local name.
type CarrierRule struct {
	CanonicalLocal string
	SubBrands      []SubBrandRule
}

// DefaultCarrierRules covers Chunghwa Telecom, whose reverse hostnames
// distinguish fixed-line, mobile, and wholesale sub-brands.
func DefaultCarrierRules() []CarrierRule {
	return []CarrierRule{
		{
			CanonicalLocal: "中華電信",
			SubBrands: []SubBrandRule{
				{HostSubstring: "hinet", Tag: "hinet"},
				{HostSubstring: "emome", Tag: "emome"},
				{HostSubstring: "cht.com", Tag: "cht"},
			},
		},
	}
}

// Directory resolves raw ISP names to canonical local and foreign names.
// The zero value (or a Directory loaded from a missing file) operates in
// pass-through mode.
type Directory struct {
	names    map[string]string // lowercased raw English name -> canonical local name
	carriers []CarrierRule
	logger   *slog.Logger
}

// New builds an empty directory with the default carrier rules.
func New(logger *slog.Logger) *Directory {
	return &Directory{
		names:    make(map[string]string),
		carriers: DefaultCarrierRules(),
		logger:   logger,
	}
}

// WithCarrierRules replaces the sub-brand rule set. The rule set is domain
// configuration, not code: callers can extend it as carriers add brands.
func (d *Directory) WithCarrierRules(rules []CarrierRule) *Directory {
	d.carriers = rules
	return d
}

// Load reads a tab-delimited dictionary file, one "rawName<TAB>localName"
// pair per line. Malformed lines are skipped with a warning; a missing file
// leaves the directory in pass-through mode. Never fatal.
func (d *Directory) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("isp dictionary unavailable, using pass-through", "path", path, "error", err)
		}
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	loaded := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.SplitN(text, "\t", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			if d.logger != nil {
				d.logger.Warn("skipping malformed isp dictionary line", "path", path, "line", line)
			}
			continue
		}
		d.Add(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		loaded++
	}
	if err := scanner.Err(); err != nil {
		if d.logger != nil {
			d.logger.Warn("isp dictionary read interrupted", "path", path, "error", err)
		}
		return nil
	}
	if d.logger != nil {
		d.logger.Info("isp dictionary loaded", "path", path, "entries", loaded)
	}
	return nil
}

// Add registers a single mapping. Lookup is case-insensitive on the raw name.
func (d *Directory) Add(rawName, canonicalLocal string) {
	if d.names == nil {
		d.names = make(map[string]string)
	}
	d.names[strings.ToLower(rawName)] = canonicalLocal
}

// Len reports the number of loaded mappings.
func (d *Directory) Len() int {
	return len(d.names)
}

// Normalize maps a raw provider name to (canonicalLocal, canonicalForeign).
// Unmapped names pass through unchanged as both outputs. When the mapped
// local name belongs to a carrier with sub-brand rules and a hostname is
// supplied, the first matching rule appends its bracketed tag.
func (d *Directory) Normalize(rawName, hostname string) (local, foreign string) {
	local, foreign = rawName, rawName

	mapped, ok := d.names[strings.ToLower(rawName)]
	if ok {
		local = mapped
	}

	if hostname == "" {
		return local, foreign
	}

	host := strings.ToLower(hostname)
	for _, carrier := range d.carriers {
		if carrier.CanonicalLocal != local {
			continue
		}
		for _, rule := range carrier.SubBrands {
			if strings.Contains(host, rule.HostSubstring) {
				return local + "(" + rule.Tag + ")", foreign
			}
		}
	}
	return local, foreign
}
