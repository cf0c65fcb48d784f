package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/seechain/seechain/internal/api"
	"github.com/seechain/seechain/internal/authz"
	"github.com/seechain/seechain/internal/engine"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/internal/registry"
	"github.com/seechain/seechain/pkg/shipmentid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	nodeURL string
	actor   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seechain",
	Short: "SeeChain shipment tracking CLI",
	Long: `seechain is the command-line client for SeeChain shipment tracking.

It creates shipment records on the ledger, appends status updates under
role-based authorization, and reads back projected shipment state
reconstructed from the ledger's log.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.seechain")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8545"
		}
		if actor == "" {
			actor = viper.GetString("actor")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.seechain/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "ledger node URL (default http://localhost:8545)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor address used for writes")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateStatusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(grantCustomsCmd)
	rootCmd.AddCommand(versionCmd)
}

// newEngine wires a one-shot engine against the configured node.
func newEngine(logger *zap.Logger) *engine.Engine {
	gw := ledger.NewHTTPGateway(ledger.HTTPConfig{NodeURL: nodeURL}, logger)
	return engine.New(gw, authz.New(gw, logger), registry.New(), engine.Config{
		ConfirmTimeout:  viper.GetDuration("confirm_timeout"),
		RefreshInterval: viper.GetDuration("refresh_interval"),
	}, logger)
}

// resolveID accepts either a hex shipment id or a human-readable key.
func resolveID(arg string) shipmentid.ID {
	if id, err := shipmentid.Parse(arg); err == nil {
		return id
	}
	return shipmentid.Derive(arg)
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all shipments on the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine(zap.NewNop())
		if err := eng.RefreshAll(cmd.Context()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSTATUS\tORIGIN\tDESTINATION\tLAST UPDATE")
		for _, s := range eng.ListShipments() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.HumanKey, s.CurrentStatus, s.Origin, s.Destination, formatTime(s.LastUpdate))
		}
		return w.Flush()
	},
}

// ── get ──────────────────────────────────────────────────────────────────────

var getJSON bool

var getCmd = &cobra.Command{
	Use:   "get <key-or-id>",
	Short: "Show one shipment with its full status log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine(zap.NewNop())
		s, err := eng.GetShipment(cmd.Context(), resolveID(args[0]))
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("shipment %q not found", args[0])
			}
			return err
		}

		if getJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}

		fmt.Printf("Shipment:    %s (%s)\n", s.HumanKey, s.ID)
		fmt.Printf("Route:       %s → %s\n", s.Origin, s.Destination)
		fmt.Printf("Status:      %s\n", s.CurrentStatus)
		fmt.Printf("Last update: %s\n", formatTime(s.LastUpdate))
		if s.LogSuspect {
			fmt.Println("Warning:     log ordering looks inconsistent")
		}
		fmt.Println("\nLog:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range s.Log {
			fmt.Fprintf(w, "  %s\t%s\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Status, e.Updater)
		}
		return w.Flush()
	},
}

// ── create ───────────────────────────────────────────────────────────────────

var createCmd = &cobra.Command{
	Use:   "create <key> <origin> <destination>",
	Short: "Create a shipment record on the ledger",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if actor == "" {
			return fmt.Errorf("an actor address is required (--actor or config)")
		}

		eng := newEngine(zap.NewNop())
		s, err := eng.CreateShipment(cmd.Context(), args[0], args[1], args[2], actor)
		if err != nil {
			return err
		}

		fmt.Printf("Created shipment %s (%s)\n", s.HumanKey, s.ID)
		return nil
	},
}

// ── update-status ────────────────────────────────────────────────────────────

var updateStatusCmd = &cobra.Command{
	Use:   "update-status <key-or-id> <status>",
	Short: "Append a status update to a shipment (customs workers only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if actor == "" {
			return fmt.Errorf("an actor address is required (--actor or config)")
		}

		eng := newEngine(zap.NewNop())
		s, err := eng.AppendStatus(cmd.Context(), resolveID(args[0]), args[1], actor)
		if err != nil {
			if errors.Is(err, ledger.ErrUnauthorized) {
				return fmt.Errorf("%s is not authorized to update shipment status", actor)
			}
			return err
		}

		fmt.Printf("Shipment %s is now %q (log length %d)\n", s.HumanKey, s.CurrentStatus, len(s.Log))
		return nil
	},
}

// ── serve ────────────────────────────────────────────────────────────────────

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local shipment API for dashboards",
	Long: `Serve runs the sync engine continuously: it hydrates the registry from
the ledger, refreshes it in the background to absorb other actors'
writes, and exposes the shipment API over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, _ := zap.NewProduction()
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng := newEngine(logger)
		if err := eng.RefreshAll(ctx); err != nil {
			logger.Warn("initial refresh failed, serving empty registry", zap.Error(err))
		}
		eng.StartRefreshLoop(ctx)

		srv := api.NewServer(eng, api.Config{
			DefaultActor: actor,
			CORSOrigins:  viper.GetStringSlice("cors_origins"),
		}, logger)

		addr := fmt.Sprintf(":%d", servePort)
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("shipment API listening", zap.String("addr", addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

// ── grant-customs ────────────────────────────────────────────────────────────

var adminSecret string

var grantCustomsCmd = &cobra.Command{
	Use:   "grant-customs <address>",
	Short: "Grant the customs worker role to an actor (dev node admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminSecret == "" {
			adminSecret = viper.GetString("admin_secret")
		}
		if adminSecret == "" {
			return fmt.Errorf("an admin secret is required (--admin-secret or config)")
		}

		body, err := json.Marshal(map[string]any{"actor": args[0], "grant": true})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
			nodeURL+"/api/v1/admin/customs", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Admin-Secret", adminSecret)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("node unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			return fmt.Errorf("grant failed (%d): %s", resp.StatusCode, bytes.TrimSpace(raw))
		}

		fmt.Printf("Granted customs role to %s\n", args[0])
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the seechain CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("seechain", version)
	},
}

func init() {
	getCmd.Flags().BoolVar(&getJSON, "json", false, "print the shipment as JSON")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port for the shipment API")
	grantCustomsCmd.Flags().StringVar(&adminSecret, "admin-secret", "", "dev node admin secret")
}
