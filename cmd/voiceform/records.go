package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-voiceform/pkg/store"
)

func newOrdersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List saved coffee orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			orders, err := store.NewOrderStore(cfg.OrdersPath()).List()
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), orders)
			}
			return printOrders(cmd.OutOrStdout(), orders)
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newCheckInsCommand() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "checkins",
		Short: "Show the wellness check-in log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			checkins := store.NewCheckInLog(cfg.CheckInLogPath())

			var entries []store.CheckIn
			if latest {
				c, err := checkins.Latest()
				if errors.Is(err, store.ErrNoEntries) {
					fmt.Fprintln(cmd.OutOrStdout(), "No check-ins yet.")
					return nil
				}
				if err != nil {
					return err
				}
				entries = []store.CheckIn{c}
			} else if entries, err = checkins.Entries(); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			return printCheckIns(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "Only show the most recent check-in")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printOrders(w io.Writer, orders []store.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tSIZE\tDRINK\tMILK\tEXTRAS")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.Timestamp, o.Name, o.Size, o.DrinkType, o.Milk, o.ExtrasText())
	}
	return tw.Flush()
}

func printCheckIns(w io.Writer, entries []store.CheckIn) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No check-ins yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tMOOD\tENERGY\tSTRESS\tOBJECTIVES")
	for _, c := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Date, c.Time, dash(c.Mood), dash(c.Energy), dash(c.Stress), dash(strings.Join(c.Objectives, "; ")))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
