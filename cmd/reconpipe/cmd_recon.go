package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/recon"
	"github.com/zero-day-ai/reconpipe/scope"
)

func newReconCmd(a *app) *cobra.Command {
	var (
		out       string
		scopeFile string
		cfg       recon.PipelineConfig
	)
	cmd := &cobra.Command{
		Use:   "recon <domain>",
		Short: "Passively probe a root domain and its common subdomains",
		Long: `Resolves the root domain and a fixed list of common subdomains, sends
one HEAD request to each, checks robots.txt and optionally peeks at the TLS
handshake. Hosts outside the scope file are recorded and never contacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = a.cfg.Recon.Output
			}
			if scopeFile == "" {
				scopeFile = a.cfg.Gates.ScopeFile
			}
			if scopeFile != "" {
				doc, err := scope.Load(scopeFile)
				if err != nil {
					return err
				}
				if cfg.Scope, err = scope.NewChecker(doc); err != nil {
					return err
				}
			}
			cfg.IncludeTLS = cfg.IncludeTLS || a.cfg.Recon.IncludeTLS
			cfg.IncludeContent = cfg.IncludeContent || a.cfg.Recon.IncludeContent
			cfg.Logger = a.logger

			var w recon.Writer
			if !cfg.DryRun {
				l, err := recon.OpenOutput(out)
				if err != nil {
					return err
				}
				defer l.Close()
				w = l
			}

			res, err := recon.NewPipeline(recon.NewProber(a.cfg.ProberOptions(a.logger)...), w, cfg).Run(cmd.Context(), args[0])
			if res != nil {
				fmt.Fprintf(a.stdout, "%s: %d hosts scanned, %d resolved, %d with WAF, %d blocked by scope\n",
					res.Root, res.HostsScanned, res.HostsResolved, res.HostsWithWAF, len(res.Blocked))
				if !cfg.DryRun {
					fmt.Fprintf(a.stdout, "records appended to %s\n", out)
				}
			}
			if err != nil {
				return err
			}
			if res.HostsScanned == 0 && len(res.Blocked) > 0 {
				return errors.New("every candidate host is out of scope")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "JSONL output file (default recon.output)")
	cmd.Flags().StringVar(&scopeFile, "scope", "", "scope file (default gates.scope_file)")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "probe but write nothing")
	cmd.Flags().BoolVar(&cfg.IncludeTLS, "tls", false, "peek at TLS ALPN and SAN")
	cmd.Flags().BoolVar(&cfg.IncludeContent, "content", false, "fetch robots.txt")
	return cmd
}
