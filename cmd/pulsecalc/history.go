package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecalc/internal/record"
)

// historyCmd prints the updates recorded by serve --record.
var historyCmd = &cobra.Command{
	Use:   "history <file>",
	Short: "Print recorded channel updates",
	Long: `Print the channel updates recorded by "pulsecalc serve --record".

Records are printed one per line, oldest first. Use --channel to select a
single calculation and --since/--until (RFC 3339) to select a time range.
--json prints each record as a JSON object.

Example:
  pulsecalc history updates.cbor
  pulsecalc history updates.cbor --channel sum --since 2024-03-01T12:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("channel", "", "only show this calculation")
	historyCmd.Flags().String("since", "", "only show records at or after this RFC 3339 time")
	historyCmd.Flags().String("until", "", "only show records before this RFC 3339 time")
	historyCmd.Flags().Bool("json", false, "print records as JSON lines")
}

// historyLine is the JSON form of a record.
type historyLine struct {
	At        time.Time `json:"at"`
	Channel   string    `json:"channel"`
	Connected bool      `json:"connected"`
	Value     any       `json:"value"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter, err := historyFilter(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	recs, err := record.NewReader(f, filter).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for _, r := range recs {
		if asJSON {
			if err := enc.Encode(historyLine{At: r.At, Channel: r.Channel, Connected: r.Connected, Value: r.Value}); err != nil {
				return err
			}
			continue
		}

		state := "connected"
		if !r.Connected {
			state = "disconnected"
		}
		value := "-"
		if r.Value != nil {
			value = formatValue(r.Value)
		}
		fmt.Fprintf(out, "%s  %-20s  %-12s  %s\n", r.At.Format(time.RFC3339Nano), r.Channel, state, value)
	}
	return nil
}

func historyFilter(cmd *cobra.Command) (record.Filter, error) {
	var filter record.Filter
	filter.Channel, _ = cmd.Flags().GetString("channel")

	for _, bound := range []struct {
		flag string
		dst  *time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		raw, _ := cmd.Flags().GetString(bound.flag)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return record.Filter{}, fmt.Errorf("invalid --%s: %w", bound.flag, err)
		}
		*bound.dst = t
	}
	return filter, nil
}
