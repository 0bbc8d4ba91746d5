package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"homelink/internal/hass"
	"homelink/internal/store"
	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagEntryTitle    string
	flagEntryData     map[string]string
	flagEntryDataFile string
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Manage stored config entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list [domain]",
	Short: "List config entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := ""
		if len(args) == 1 {
			domain = args[0]
		}
		return withHost(func(h *hass.Hass) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTRY ID\tDOMAIN\tTITLE\tVERSION\tSOURCE\tUNIQUE ID")
			for _, e := range h.Entries().Entries(domain) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d.%d\t%s\t%s\n",
					e.EntryID, e.Domain, e.Title, e.Version, e.MinorVersion, e.Source, e.UniqueID)
			}
			return w.Flush()
		})
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Add a config entry, e.g. a Home Connect account with its OAuth2 token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := map[string]any{}
		if flagEntryDataFile != "" {
			raw, err := os.ReadFile(flagEntryDataFile)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("invalid data file %s: %w", flagEntryDataFile, err)
			}
		}
		for k, v := range flagEntryData {
			data[k] = v
		}

		return withHost(func(h *hass.Hass) error {
			entry, err := h.Entries().Add(&host.ConfigEntry{
				Domain: args[0],
				Title:  flagEntryTitle,
				Data:   data,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), entry.EntryID)
			return nil
		})
	},
}

var entriesRemoveCmd = &cobra.Command{
	Use:   "remove <entry id>",
	Short: "Remove a config entry and its entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(h *hass.Hass) error {
			return h.Entries().Remove(context.Background(), args[0])
		})
	},
}

func init() {
	entriesAddCmd.Flags().StringVar(&flagEntryTitle, "title", "", "Entry title")
	entriesAddCmd.Flags().StringToStringVar(&flagEntryData, "data", nil, "Entry data as key=value pairs")
	entriesAddCmd.Flags().StringVar(&flagEntryDataFile, "data-file", "", "JSON file with entry data, e.g. {\"token\": {...}}")

	entriesCmd.AddCommand(entriesListCmd, entriesAddCmd, entriesRemoveCmd)
	rootCmd.AddCommand(entriesCmd)
}

// withHost opens the store and a host with every integration registered
// but none set up.
func withHost(fn func(h *hass.Hass) error) error {
	logger, loader, err := bootstrap()
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		return err
	}

	st, err := store.NewBoltStore(loader.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := hass.New(hass.Options{Config: loader, Store: st, Logger: logger.Named("hass")})
	if err != nil {
		return err
	}
	defer h.Stop(context.Background())

	integrations, err := plugin.CreateAll(plugin.NewContext(h, logger, nil))
	if err != nil {
		return err
	}
	for _, integration := range integrations {
		h.AddIntegration(integration)
	}
	logger.Debug("Host opened", zap.String("db", loader.DBPath()))

	return fn(h)
}
