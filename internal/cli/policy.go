package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective validation policy",
		Args:  cobra.NoArgs,
		RunE:  runPolicy,
	}
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := cfg.ValidationPolicy()
	if err != nil {
		return err
	}

	size := func(n int64) string {
		if n <= 0 {
			return "unlimited"
		}
		return humanize.Bytes(uint64(n))
	}
	extensions := "any"
	if len(p.AllowedExtensions) > 0 {
		extensions = strings.Join(p.AllowedExtensions, ", ")
	}
	count := "unlimited"
	if p.MaxFileCount > 0 {
		count = fmt.Sprint(p.MaxFileCount)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Max file size:       %s\n", size(p.MaxFileSize))
	fmt.Fprintf(out, "Allowed extensions:  %s\n", extensions)
	fmt.Fprintf(out, "Max files per batch: %s\n", count)
	fmt.Fprintf(out, "Org storage limit:   %s\n", size(p.OrgStorageLimit))
	fmt.Fprintf(out, "Auto close:          %t\n", p.AutoCloseEnabled())
	return nil
}
