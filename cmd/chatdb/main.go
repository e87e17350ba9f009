// Package main is the chatdb maintenance CLI.
//
// chatdb operates directly on a chat application's data directory: storage
// usage accounting, index rebuilds, zip backup and restore, schema export
// and orphaned-blob analysis. The running application is the single logical
// writer of the directory, so every mutating command takes an advisory file
// lock first.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maruel/chatdb/internal/models"
	"github.com/maruel/chatdb/internal/store"
	"github.com/maruel/chatdb/internal/vfs"
)

var (
	dataDir  string
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatdb: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "chatdb",
	Short:        "Maintenance tool for the chat application data directory",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "Data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(usageCmd, reindexCmd, exportCmd, importCmd, schemaCmd, gcCmd)

	usageCmd.Flags().BoolVarP(&usageVerbose, "verbose", "v", false, "List every file")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output zip file (default <collection>.zip)")
	gcCmd.Flags().BoolVar(&gcDelete, "delete", false, "Delete orphaned blobs instead of listing them")
}

func setupLogging(level string) error {
	ll := &slog.LevelVar{}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level %q", level)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)
	return nil
}

func openStore() (*store.Store, error) {
	f, err := vfs.Open(dataDir)
	if err != nil {
		return nil, err
	}
	return store.New(f), nil
}

// acquireLock obtains the advisory single-writer lock for the data
// directory. The running application and concurrent chatdb invocations
// contend on the same file.
func acquireLock(timeout time.Duration) (func(), error) {
	lockPath := filepath.Join(dataDir, ".chatdb.lock")
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire data directory lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another writer holds the data directory (lock: %s)", lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

var usageVerbose bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report storage usage of the data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		total, entries, err := s.Usage()
		if err != nil {
			return err
		}
		if usageVerbose {
			for _, e := range entries {
				fmt.Printf("%12d  %s\n", e.Size, e.Path)
			}
		}
		fmt.Printf("%d files, %d bytes total\n", len(entries), total)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <collection>",
	Short: "Rebuild a collection index from the entity folders on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unlock, err := acquireLock(5 * time.Second)
		if err != nil {
			return err
		}
		defer unlock()
		s, err := openStore()
		if err != nil {
			return err
		}
		if err := s.RebuildFolderIndex(args[0]); err != nil {
			return err
		}
		entries, err := s.ReadIndex(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("rebuilt %s index: %d entries\n", args[0], len(entries))
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <collection>",
	Short: "Export a collection subtree as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		data, err := s.ExportFolderAsZip(args[0])
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = args[0] + ".zip"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		fmt.Printf("exported %s to %s (%d bytes)\n", args[0], out, len(data))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <collection> <zip>",
	Short: "Import a zip archive into a collection and rebuild its index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		unlock, err := acquireLock(5 * time.Second)
		if err != nil {
			return err
		}
		defer unlock()
		s, err := openStore()
		if err != nil {
			return err
		}
		if err := s.ImportFolderFromZip(args[0], data); err != nil {
			return err
		}
		entries, err := s.ReadIndex(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("imported %s into %s: %d entries\n", args[1], args[0], len(entries))
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "Print the JSON Schema of the stored file formats",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schemas := models.Schemas()
		if len(args) == 1 {
			schema, ok := schemas[args[0]]
			if !ok {
				return fmt.Errorf("unknown file %q, known: %v", args[0], models.SchemaNames())
			}
			return printJSON(schema)
		}
		return printJSON(schemas)
	},
}

var gcDelete bool

var gcCmd = &cobra.Command{
	Use:   "gc <chatID>",
	Short: "Report or delete blobs no longer referenced by a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		orphans, err := s.OrphanedChatBlobs(args[0])
		if err != nil {
			return err
		}
		if !gcDelete {
			for _, id := range orphans {
				fmt.Println(id)
			}
			fmt.Printf("%d orphaned blobs\n", len(orphans))
			return nil
		}
		unlock, err := acquireLock(5 * time.Second)
		if err != nil {
			return err
		}
		defer unlock()
		for _, id := range orphans {
			if err := s.DeleteEntityBlob(store.CollectionChats, args[0], id); err != nil {
				return err
			}
		}
		fmt.Printf("deleted %d orphaned blobs\n", len(orphans))
		return nil
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
