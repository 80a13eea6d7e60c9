// Command inntekt runs the income enrichment stage.
//
// Usage:
//
//	inntekt serve [--config config.yaml]
//	inntekt topology
package main

import (
	"fmt"
	"os"

	"github.com/navikt/aap-inntekt/internal/inntekt"
	"github.com/navikt/aap-inntekt/pkg/config"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "inntekt",
		Short:         "Enriches income requests with income from inntektskomponenten and POPP",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(topologyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func topologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the stream topology as a mermaid diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			topo := inntekt.NewTopology(cfg.Kafka.Topics.Inntekter, nil, nil, metrics.New(), nil)
			fmt.Fprint(cmd.OutOrStdout(), topo.Describe())
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "path to config file")
	return cmd
}
