package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"inkcheck/api/internal/analysis"
	"inkcheck/api/internal/config"
	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/pmdoc"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "inkcheck",
		Short: "Inkcheck - correction annotations for structured documents",
		Long: `inkcheck projects documents to the text the correction service sees
and runs one-off analyses from the command line.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(
		newVersionCmd(),
		newProjectCmd(),
		newCheckCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "inkcheck version %s\n", version)
			}
		},
	}
}

func newProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project FILE",
		Short: "Print the canonical text of a .json or .md document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			text := correction.Project(doc)
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"text": text,
					"size": doc.ContentSize(),
				})
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Analyse a document with the correction service and list the findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			serviceURL, _ := cmd.Flags().GetString("service")
			token, _ := cmd.Flags().GetString("token")
			if serviceURL == "" {
				serviceURL = cfg.ServiceURL
			}
			if token == "" {
				token = cfg.ServiceToken
			}
			if strings.TrimSpace(serviceURL) == "" {
				return fmt.Errorf("no correction service: pass --service or set CORRECTION_SERVICE_URL")
			}

			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			client := analysis.NewClient(analysis.ClientConfig{
				URL:           serviceURL,
				Token:         token,
				ModelType:     cfg.ModelType,
				QwenModelType: cfg.QwenModelType,
				UseEnsemble:   cfg.UseEnsemble,
			})
			items, err := check(cmd, analysis.NewAdapter(client), doc)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"items": items})
			}
			printItems(cmd, items)
			return nil
		},
	}
	cmd.Flags().String("service", "", "Correction service URL (default CORRECTION_SERVICE_URL)")
	cmd.Flags().String("token", "", "Correction service bearer token (default CORRECTION_SERVICE_TOKEN)")
	return cmd
}

// check runs one analysis of doc in a throwaway session.
func check(cmd *cobra.Command, adapter *analysis.Adapter, doc *pmdoc.Node) ([]correction.Item, error) {
	session := correction.NewSession(doc)
	token, err := session.BeginRun()
	if err != nil {
		return nil, err
	}
	sink := &analysis.SessionSink{
		Session: session,
		Token:   token,
		OnProgress: func(current, total int) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\ranalysing %d/%d", current, total)
		},
	}
	err = adapter.Run(cmd.Context(), token.ID, token.Text, sink)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	return session.Snapshot().Items, nil
}

func printItems(cmd *cobra.Command, items []correction.Item) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No corrections.")
		return
	}
	for _, it := range items {
		suggestion := ""
		if s, ok := it.Primary(); ok {
			suggestion = s.Text
		}
		fmt.Fprintf(out, "%d-%d\t%s\t%q -> %q\n", it.From, it.To, it.Class(), it.OriginalText, suggestion)
	}
	fmt.Fprintf(out, "%d correction(s)\n", len(items))
}

func loadDocument(path string) (*pmdoc.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		doc, err := pmdoc.ParseJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	case ".md", ".markdown":
		return pmdoc.FromMarkdown(raw), nil
	default:
		return nil, fmt.Errorf("unsupported document type %q (want .json or .md)", filepath.Ext(path))
	}
}
