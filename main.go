package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabfab/stakeholder-rag/api"
	"github.com/fabfab/stakeholder-rag/chat"
	"github.com/fabfab/stakeholder-rag/config"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	opts appOptions
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "stakeholder-rag",
		Short:         "Role-aware retrieval and classification over payment operations documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.opts.memoryStore, "memory-store", false, "keep vectors in process memory instead of Postgres")
	root.PersistentFlags().BoolVar(&flags.opts.noGraph, "no-graph", false, "skip syncing documents into Neo4j")

	root.AddCommand(
		ingestCmd(flags),
		chatCmd(flags),
		serveCmd(flags),
		statsCmd(flags),
		rolesCmd(),
		clearCmd(flags),
	)
	return root
}

// withApp builds the components, runs fn and releases connections afterwards.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	a, err := newApp(ctx, cfg, flags.opts, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(ctx, a)
}

func ingestCmd(flags *rootFlags) *cobra.Command {
	var dir, namespace string
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a file, or every supported file under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					res := a.retrieval.IngestFile(ctx, args[0], namespace)
					printIngestResult(out, res)
					if !res.Success {
						return res.Err
					}
					return nil
				}

				target := dir
				if target == "" {
					target = a.cfg.DataDir
				}
				batch, err := a.retrieval.IngestDirectory(ctx, target, namespace)
				if err != nil {
					return err
				}
				for _, res := range batch.Results {
					printIngestResult(out, res)
				}
				fmt.Fprintf(out, "\n%d succeeded, %d failed, %d total\n", batch.Succeeded, batch.Failed, batch.Total())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to ingest (defaults to DATA_DIR)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "vector namespace (defaults to NAMESPACE)")
	return cmd
}

func printIngestResult(w io.Writer, res retrieval.IngestResult) {
	if !res.Success {
		fmt.Fprintf(w, "FAIL %s (stage %s): %s\n", res.Source, res.Stage, res.Error)
		return
	}
	fmt.Fprintf(w, "OK   %s: %s (%.2f, %s), %d chunks\n", res.Source, res.DocType, res.Confidence, res.Method, res.ChunksIndexed)
}

func chatCmd(flags *rootFlags) *cobra.Command {
	var (
		role      string
		namespace string
		topK      int
		asJSON    bool
		stream    bool
	)
	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask a question through a stakeholder lens",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter your question: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					question = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				explicit := profile.Role("")
				if role != "" {
					r, ok := a.catalog.ParseRole(role)
					if !ok {
						return fmt.Errorf("unknown role %q, expected one of %v", role, a.catalog.RoleIDs())
					}
					explicit = r
				}

				out := cmd.OutOrStdout()
				req := chat.Request{Question: question, Role: explicit, TopK: topK, Namespace: namespace}

				var (
					answer   chat.RoutedAnswer
					err      error
					streamed bool
				)
				if stream && !asJSON {
					answer, err = a.chat.ChatStream(ctx, req, func(chunk string) error {
						streamed = true
						_, werr := io.WriteString(out, chunk)
						return werr
					})
				} else {
					answer, err = a.chat.Chat(ctx, req)
				}

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(answer); encErr != nil {
						return encErr
					}
					return err
				}
				if streamed && answer.Generated {
					fmt.Fprintln(out)
				} else {
					fmt.Fprintln(out, answer.Answer)
				}
				printAnswerFooter(out, answer)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "", "answer as this role instead of routing automatically")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "vector namespace to search")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (defaults to TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	return cmd
}

func printAnswerFooter(w io.Writer, answer chat.RoutedAnswer) {
	fmt.Fprintf(w, "\nRole: %s | Confidence: %.1f%% | Role adherence: %t\n", answer.Role, answer.Confidence, answer.RoleAdherence)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range answer.Sources {
		fmt.Fprintf(w, "%d. %s [%s] relevance %.2f\n", i+1, src.Source, src.DocType, src.RelevanceScore)
	}
}

func serveCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				listen := addr
				if listen == "" {
					listen = a.cfg.HTTPAddr
				}

				server := api.New(api.Services{
					Chat:    a.chat,
					Ingest:  a.retrieval,
					Roles:   a.router.Roles,
					Clear:   a.clear,
					DataDir: a.cfg.DataDir,
				}, a.logger)

				httpServer := &http.Server{
					Addr:              listen,
					Handler:           server,
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.Info("http server listening", "addr", listen)
					errCh <- httpServer.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					a.logger.Info("shutting down http server")
					return httpServer.Shutdown(shutdownCtx)
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func statsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				stats, err := a.retrieval.Stats(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}
}

// rolesCmd only needs the profile tables, so it does not open any connection.
func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List stakeholder roles and their document priorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			catalog, err := loadCatalog(cfg.ProfilesPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range catalog.Roles {
				fmt.Fprintf(out, "%s (%s)\n", p.Name, p.ID)
				fmt.Fprintf(out, "  Focus: %s\n", p.Context.Focus)
				fmt.Fprintf(out, "  Concerns: %s\n", p.Context.Concerns)
				fmt.Fprintf(out, "  Tone: %s\n", p.Context.Tone)
				fmt.Fprintf(out, "  Documents: %v\n", p.DocTypes)
			}
			return nil
		},
	}
}

func clearCmd(flags *rootFlags) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every indexed vector and graph node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				fmt.Fprint(cmd.OutOrStdout(), "This will permanently delete ingested data from the vector store and Neo4j. Continue? [y/N]: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("read confirmation: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "clear aborted")
					return nil
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "clear aborted")
					return nil
				}
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "RAG data removed")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	return cmd
}
