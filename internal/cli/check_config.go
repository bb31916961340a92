package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/fundwatch/internal/core/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file and exit",
	RunE:  runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ok (source=%s)\n", cfgPath, cfg.Source.Kind)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAIN\tNAME\tPROVIDERS\tPROTOCOL ADDRESSES")
	for _, c := range cfg.Chains {
		name := c.Name
		if name == "" {
			name = c.ChainID.Name()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
			c.ChainID, name, len(c.Providers), len(cfg.Detector.ProtocolAddresses[c.ChainID]))
	}
	return w.Flush()
}

// exitOnError is shared by commands that report errors and exit non-zero.
func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
