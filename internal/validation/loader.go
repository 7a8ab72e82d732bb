package validation

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk YAML shape; sizes are human strings like "50MB".
type policyFile struct {
	MaxFileSize       string   `yaml:"maxFileSize"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	MaxFileCount      int      `yaml:"maxFileCount"`
	OrgStorageLimit   string   `yaml:"orgStorageLimit"`
	AutoClose         *bool    `yaml:"autoClose"`
}

// LoadPolicyFile reads a YAML policy from disk.
func LoadPolicyFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// LoadPolicy parses a YAML policy document.
func LoadPolicy(r io.Reader) (Policy, error) {
	var pf policyFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	p := Policy{
		MaxFileCount: pf.MaxFileCount,
		AutoClose:    pf.AutoClose,
	}
	for _, ext := range pf.AllowedExtensions {
		if n := NormalizeExtension(ext); n != "" {
			p.AllowedExtensions = append(p.AllowedExtensions, n)
		}
	}

	var err error
	if p.MaxFileSize, err = ParseSize(pf.MaxFileSize); err != nil {
		return Policy{}, fmt.Errorf("maxFileSize: %w", err)
	}
	if p.OrgStorageLimit, err = ParseSize(pf.OrgStorageLimit); err != nil {
		return Policy{}, fmt.Errorf("orgStorageLimit: %w", err)
	}
	return p, nil
}

// ParseSize parses "2G", "50MB" or plain byte counts. Empty means 0.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}
