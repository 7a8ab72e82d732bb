// Package validation classifies candidate files against an upload policy before
// any transfer starts.
package validation

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/plc-visualizer/uploader/internal/models"
)

// Policy describes what a batch of uploads may contain.
type Policy struct {
	MaxFileSize       int64 // Bytes; <= 0 disables the size rule
	AllowedExtensions []string
	MaxFileCount      int // 0 means unlimited
	OrgStorageLimit   int64
	OrgStorageUsed    int64
	AutoClose         *bool // nil means true
}

// AutoCloseEnabled reports whether a settled, error-free batch should close itself.
func (p Policy) AutoCloseEnabled() bool {
	return p.AutoClose == nil || *p.AutoClose
}

// allows reports whether ext (lowercase, no dot) is on the allow-list.
// An empty allow-list accepts everything.
func (p Policy) allows(ext string) bool {
	if len(p.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range p.AllowedExtensions {
		if NormalizeExtension(allowed) == ext {
			return true
		}
	}
	return false
}

// Result is the outcome of evaluating one file.
type Result struct {
	Accepted bool
	Reason   models.Status
	Message  string
}

// Accept returns an accepting result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejection with a human-readable message.
func Reject(reason models.Status, message string) Result {
	return Result{Reason: reason, Message: message}
}

// Evaluate applies the policy rules in order; the first match wins.
// Quota is checked against the same OrgStorageUsed baseline for every file.
func Evaluate(file *models.File, policy Policy, existingNames []string) Result {
	for _, name := range existingNames {
		if name == file.Name {
			return Reject(models.StatusDuplicated, "a file with this name already exists")
		}
	}

	if policy.MaxFileSize > 0 && file.Size >= policy.MaxFileSize {
		return Reject(models.StatusExceded,
			fmt.Sprintf("file must be smaller than %s", humanize.Bytes(uint64(policy.MaxFileSize))))
	}

	if policy.OrgStorageLimit > 0 && policy.OrgStorageUsed+file.Size >= policy.OrgStorageLimit {
		return Reject(models.StatusOrgFileSizeLimitExceeded,
			fmt.Sprintf("organization storage limit of %s would be exceeded", humanize.Bytes(uint64(policy.OrgStorageLimit))))
	}

	ext := Extension(file.Name)
	if !policy.allows(ext) {
		return Reject(models.StatusFileType, fmt.Sprintf("file type %q is not allowed", ext))
	}

	return Accept()
}

// Extension returns the lowercase text after the last dot, or "" when there is none.
func Extension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// NormalizeExtension lowercases an extension and strips a leading dot.
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ParseExtensions splits a comma separated list such as ".pdf,.csv,txt".
func ParseExtensions(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if ext := NormalizeExtension(part); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
