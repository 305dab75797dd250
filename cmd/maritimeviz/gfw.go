package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maritimeviz/maritimeviz/internal/gfw"
)

var (
	eventsLimit  int
	eventsOffset int
)

var gfwCmd = &cobra.Command{
	Use:   "gfw",
	Short: "Query the Global Fishing Watch API",
	Long: `Queries the Global Fishing Watch API. The token comes from gfw.token,
GFW_API_TOKEN or, failing both, an interactive prompt.

Available subcommands:
  vessel - Search vessels by MMSI, IMO, name or call sign
  events - List fishing events of a vessel
  stats  - Global fishing effort statistics`,
}

var gfwVesselCmd = &cobra.Command{
	Use:   "vessel <identifier>",
	Short: "Search vessels by MMSI, IMO, name or call sign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := gfwForCommand(cmd)
		if err != nil {
			return err
		}
		entries, err := client.SearchVessel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

var gfwEventsCmd = &cobra.Command{
	Use:   "events <vesselId> <start> <end>",
	Short: "List fishing events of a vessel between two dates",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := gfwForCommand(cmd)
		if err != nil {
			return err
		}
		entries, err := client.FishingEvents(cmd.Context(), args[0], args[1], args[2], eventsLimit, eventsOffset)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

var gfwStatsCmd = &cobra.Command{
	Use:   "stats <start> <end>",
	Short: "Global fishing effort statistics between two dates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := gfwForCommand(cmd)
		if err != nil {
			return err
		}
		stats, err := client.FishingStats(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	gfwEventsCmd.Flags().IntVar(&eventsLimit, "limit", 10, "maximum events")
	gfwEventsCmd.Flags().IntVar(&eventsOffset, "offset", 0, "events to skip")

	gfwCmd.AddCommand(gfwVesselCmd)
	gfwCmd.AddCommand(gfwEventsCmd)
	gfwCmd.AddCommand(gfwStatsCmd)
}

// gfwForCommand builds a client that prompts on the command's input when no
// token is configured.
func gfwForCommand(cmd *cobra.Command) (gfw.API, error) {
	prompt := func() (string, error) {
		return readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	return newGFWClient(nil, prompt)
}

// readToken asks for the API token. Input from a terminal is not echoed.
func readToken(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Global Fishing Watch API token: ")
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
