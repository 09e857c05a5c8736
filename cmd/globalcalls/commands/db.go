package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/globalcalls/store"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the globalcalls database",
	Long: `db - Manage the globalcalls database

Examples:
  globalcalls db migrate          # Apply pending migrations
  globalcalls db stats            # Raw and aggregated row counts per species
  globalcalls db stats --json`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		conn, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		pterm.Success.Printfln("Database %s is up to date", cfg.GetDatabaseDriver())
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show raw and aggregated row counts per species",
	RunE:  runDbStats,
}

func init() {
	dbStatsCmd.Flags().Bool("json", false, "Output statistics as JSON")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	stats, err := store.NewStore(conn, cfg.GetDatabaseDriver()).Stats(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	return renderStats(cmd.OutOrStdout(), stats)
}

func renderStats(w io.Writer, stats []store.SpeciesStats) error {
	if len(stats) == 0 {
		pterm.Info.WithWriter(w).Println("No species loaded")
		return nil
	}
	data := pterm.TableData{{"Species", "Name", "Genes", "Raw conditions", "Raw calls", "Global conditions", "Global calls", "Relations"}}
	for _, s := range stats {
		data = append(data, []string{
			strconv.FormatInt(s.SpeciesID, 10),
			s.Name,
			strconv.Itoa(s.Genes),
			strconv.Itoa(s.RawConditions),
			strconv.Itoa(s.RawCalls),
			strconv.Itoa(s.GlobalConditions),
			strconv.Itoa(s.GlobalCalls),
			strconv.Itoa(s.Relations),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}
