package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-plant-storefront/storage"
)

func newStorageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and manage persisted storefront state",
	}

	var exportPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every live item as a JSON object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Manager) error {
				out := a.out
				if exportPath != "" {
					f, err := os.Create(exportPath)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					out = f
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(store.ExportAll())
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "Write to this file instead of stdout")

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load items from a JSON object produced by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var items map[string]json.RawMessage
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("decode import file: %w", err)
			}
			return a.withStore(func(store *storage.Manager) error {
				if err := store.ImportAll(items); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "imported %d items\n", len(items))
				return nil
			})
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired and unreadable items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Manager) error {
				fmt.Fprintf(a.out, "removed %d items\n", store.Cleanup())
				return nil
			})
		},
	}

	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Report bytes used against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Manager) error {
				printUsage(a.out, store.Usage(), a.cfg.Storage.QuotaBytes)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Manager) error {
				if err := store.Clear(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "cleared namespace %q\n", store.Namespace())
				return nil
			})
		},
	}

	cmd.AddCommand(exportCmd, importCmd, cleanupCmd, usageCmd, clearCmd)
	return cmd
}

func (a *app) withStore(fn func(*storage.Manager) error) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.logger.Error("close storage", slog.Any("error", err))
		}
	}()
	return fn(store)
}

func printUsage(out io.Writer, used, quota int) {
	if quota <= 0 {
		fmt.Fprintf(out, "%d bytes used\n", used)
		return
	}
	fmt.Fprintf(out, "%d of %d bytes used (%.1f%%)\n", used, quota, float64(used)/float64(quota)*100)
}
