package policy

import (
	"fmt"
	"os"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

type policyFile struct {
	Namespaces []struct {
		Prefix      string   `yaml:"prefix"`
		TTL         string   `yaml:"ttl"`
		MaxSize     int      `yaml:"max_size"`
		Durable     bool     `yaml:"durable"`
		Invalidates []string `yaml:"invalidates"`
	} `yaml:"namespaces"`
}

// Load parses a YAML policy document. TTLs are human-friendly duration
// strings ("90s", "5m", "1h30m"); a missing or empty ttl means the default.
//
//	namespaces:
//	  - prefix: book
//	    ttl: 10m
//	    max_size: 50
//	    durable: true
//	  - prefix: chapter
//	    ttl: 5m
//	    invalidates: [book]
func Load(data []byte) (*Table, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policy: invalid config: %w", err)
	}
	policies := make([]Policy, 0, len(f.Namespaces))
	for _, ns := range f.Namespaces {
		p := Policy{
			Prefix:      ns.Prefix,
			MaxSize:     ns.MaxSize,
			Durable:     ns.Durable,
			Invalidates: ns.Invalidates,
		}
		if ns.TTL != "" {
			ttl, err := str2duration.ParseDuration(ns.TTL)
			if err != nil {
				return nil, fmt.Errorf("policy: namespace %q has invalid ttl %q: %w", ns.Prefix, ns.TTL, err)
			}
			p.TTL = ttl
		}
		policies = append(policies, p)
	}
	return NewTable(policies...)
}

// LoadFile reads and parses a YAML policy file.
func LoadFile(filename string) (*Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Load(data)
}
