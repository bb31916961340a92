package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/fundwatch/internal/core/config"
	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/infra/storage/postgres"
)

var findingsCmd = &cobra.Command{
	Use:   "findings [chain_id] [tx_hash]",
	Short: "Show archived findings for a transaction",
	Args:  cobra.ExactArgs(2),
	Run:   runFindings,
}

func init() {
	rootCmd.AddCommand(findingsCmd)
}

func runFindings(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	exitOnError(err)
	if !cfg.Database.Enabled() {
		exitOnError(errors.New("database.url is not configured"))
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	exitOnError(err)
	defer func() {
		_ = db.Close()
	}()

	findings, err := postgres.NewFindingRepo(db).ListByTx(ctx, domain.ChainID(args[0]), args[1])
	exitOnError(err)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ALERT\tBLOCK\tSCORE\tADDRESSES\tCREATED")
	for _, f := range findings {
		addrs := make([]string, len(f.Addresses))
		for i, a := range f.Addresses {
			addrs[i] = a.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%g\t%s\t%s\n",
			f.AlertID, f.BlockNumber, f.AnomalyScore, strings.Join(addrs, ","), f.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
