package main

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/keystore"
)

// keysCmd groups the API key store commands.
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the encrypted API key store",
	Long: `Keys are encrypted at rest with a key derived from CLAUDE_MASTER_KEY, or
from a generated master key kept beside the store. The store file is only
readable by its owner.`,
}

var keysStoreCmd = &cobra.Command{
	Use:   "store NAME [KEY]",
	Short: "Store an API key (read from stdin when KEY is omitted)",
	Args:  usageArgs(cobra.RangeArgs(1, 2)),
	RunE:  runKeysStore,
}

var keysGetCmd = &cobra.Command{
	Use:   "get NAME|ID",
	Short: "Print a stored API key",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runKeysGet,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys without their material",
	Args:  noArgs,
	RunE:  runKeysList,
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate ID [NEW_KEY]",
	Short: "Replace a key, keeping the old one as rotated",
	Args:  usageArgs(cobra.RangeArgs(1, 2)),
	RunE:  runKeysRotate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke a key",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runKeysRevoke,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a key from the store",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runKeysDelete,
}

var keysCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove keys expired for longer than the grace period",
	Args:  noArgs,
	RunE:  runKeysCleanup,
}

var keysBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Export the store metadata (and, with --include-keys, the encrypted keys)",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runKeysBackup,
}

var keysRestoreCmd = &cobra.Command{
	Use:   "restore PATH",
	Short: "Restore keys from a backup made with --include-keys",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runKeysRestore,
}

var keysAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report weak active keys",
	Args:  noArgs,
	RunE:  runKeysAudit,
}

func init() {
	pf := keysCmd.PersistentFlags()
	pf.String("keystore", keystore.DefaultPath, "Key store file")

	keysStoreCmd.Flags().Int("expires-in", 0, "Days until the key expires (default 90)")
	keysStoreCmd.Flags().StringToString("meta", nil, "Metadata as key=value pairs")
	keysBackupCmd.Flags().Bool("include-keys", false, "Include the encrypted key material")

	keysCmd.AddCommand(keysStoreCmd, keysGetCmd, keysListCmd, keysRotateCmd,
		keysRevokeCmd, keysDeleteCmd, keysCleanupCmd, keysBackupCmd,
		keysRestoreCmd, keysAuditCmd)
}

// openStore opens the key store configured for cmd. The master key and
// salt files live beside the store.
func openStore(cmd *cobra.Command) (*keystore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(cfg.KeyStorePath)
	return keystore.Open(keystore.Options{
		Path:      cfg.KeyStorePath,
		MasterKey: cfg.ClaudeMasterKey,
		KeyFile:   filepath.Join(dir, keystore.DefaultKeyFile),
		SaltFile:  filepath.Join(dir, keystore.DefaultSaltFile),
	})
}

// keyArg returns args[i], or the first line of stdin when it is absent.
func keyArg(cmd *cobra.Command, args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	key := strings.TrimSpace(line)
	if key == "" {
		if err != nil {
			return "", usageError(fmt.Errorf("no key given: %w", err))
		}
		return "", usageError(errors.New("no key given"))
	}
	return key, nil
}

func runKeysStore(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	key, err := keyArg(cmd, args, 1)
	if err != nil {
		return err
	}
	days, _ := cmd.Flags().GetInt("expires-in")
	meta, _ := cmd.Flags().GetStringToString("meta")

	var id string
	if days > 0 {
		id, err = s.StoreWithExpiry(args[0], key, time.Now().AddDate(0, 0, days), meta)
	} else {
		id, err = s.Store(args[0], key, meta)
	}
	if err != nil {
		return err
	}
	if !keystore.IsStrong(key) {
		color.New(color.FgYellow).Fprintln(cmd.ErrOrStderr(), "⚠️  key looks weak: use 20+ characters mixing letters, digits and symbols")
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runKeysGet(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	k, err := s.Retrieve(args[0])
	if err != nil {
		return keyFailure(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), k.APIKey)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	keys, err := s.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCREATED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.Status,
			k.Created.Format(time.DateOnly), k.Expires.Format(time.DateOnly))
	}
	return tw.Flush()
}

func runKeysRotate(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	key, err := keyArg(cmd, args, 1)
	if err != nil {
		return err
	}
	id, err := s.Rotate(args[0], key)
	if err != nil {
		return keyFailure(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	return keyFailure(s.Revoke(args[0]))
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	return keyFailure(s.Delete(args[0]))
}

func runKeysCleanup(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	n, err := s.CleanupExpired(time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired keys\n", n)
	return nil
}

func runKeysBackup(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	includeKeys, _ := cmd.Flags().GetBool("include-keys")
	return s.ExportBackup(args[0], includeKeys)
}

func runKeysRestore(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	n, err := s.RestoreBackup(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d keys\n", n)
	return nil
}

func runKeysAudit(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	st, err := s.AuditStrength()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "strong: %d\n", len(st.Strong))
	for _, name := range st.Weak {
		color.New(color.FgRed).Fprintf(w, "weak:   %s\n", name)
	}
	if len(st.Weak) > 0 {
		return failed("%d weak keys", len(st.Weak))
	}
	return nil
}

// keyFailure turns lookups of missing or inactive keys into failed checks.
func keyFailure(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keystore.ErrNotFound), errors.Is(err, keystore.ErrRevoked), errors.Is(err, keystore.ErrExpired):
		return &exitError{code: exitFailed, err: err}
	}
	return err
}
