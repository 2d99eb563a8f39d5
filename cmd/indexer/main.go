package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tokenwatch/transferscan/internal/common"
	internalconfig "github.com/tokenwatch/transferscan/internal/config"
	"github.com/tokenwatch/transferscan/internal/db"
	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/internal/metrics"
	"github.com/tokenwatch/transferscan/internal/migrations"
	"github.com/tokenwatch/transferscan/internal/reorg"
	"github.com/tokenwatch/transferscan/internal/rpc"
	"github.com/tokenwatch/transferscan/internal/scanner"
	internalstore "github.com/tokenwatch/transferscan/internal/store"
	"github.com/tokenwatch/transferscan/pkg/api"
	pkgconfig "github.com/tokenwatch/transferscan/pkg/config"
	pkgstore "github.com/tokenwatch/transferscan/pkg/store"
)

const version = "1.0.0"

// errInvalidArgs marks argument errors so main can exit with code 2.
var errInvalidArgs = errors.New("invalid arguments")

var (
	configPath string

	indexStartBlock uint64
	indexLatest     bool

	queryAddress   string
	queryFromBlock uint64
	queryToBlock   uint64
	queryLimit     int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errInvalidArgs) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "TransferScan - ERC-20 transfer event indexer",
	Long: `TransferScan indexes Transfer events of a single ERC-20 token contract
into a local SQLite database, following the canonical chain through
reorganizations, and makes the history queryable.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run the indexing scanner",
	Long: `Run the block scanner. Without flags it resumes from the last processed
block (or backfills a bounded window when the store is empty). With
--start-block it starts at an explicit height; with --latest it starts
from the current head minus the backfill window.`,
	RunE: runIndex,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query indexed transfer events as JSON",
	RunE:  runQuery,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate statistics for the indexed data set",
	RunE:  runStats,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&pkgconfig.Config{})
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (optional)")

	indexCmd.Flags().Uint64Var(&indexStartBlock, "start-block", 0, "start scanning at this block")
	indexCmd.Flags().BoolVar(&indexLatest, "latest", false, "start scanning from head minus the backfill window")

	queryCmd.Flags().StringVar(&queryAddress, "address", "", "match events where the address is sender or recipient")
	queryCmd.Flags().Uint64Var(&queryFromBlock, "from-block", 0, "lowest block number, inclusive")
	queryCmd.Flags().Uint64Var(&queryToBlock, "to-block", 0, "highest block number, inclusive")
	queryCmd.Flags().IntVar(&queryLimit, "limit", pkgstore.DefaultQueryLimit, "maximum number of events")

	configCmd.AddCommand(configSchemaCmd)
	rootCmd.AddCommand(indexCmd, queryCmd, statsCmd, configCmd)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errInvalidArgs, err)
	})
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexLatest && cmd.Flags().Changed("start-block") {
		return fmt.Errorf("%w: cannot specify both --start-block and --latest", errInvalidArgs)
	}

	cfg, err := internalconfig.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("connecting to Ethereum node: %s", cfg.RPC.URL)
	rpcClient, err := rpc.NewClient(ctx, cfg.RPC)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer rpcClient.Close()

	if err := migrations.RunMigrations(log, cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	st := internalstore.New(database, log)
	detector := reorg.NewDetector(st, rpcClient, log)

	var startBlock *uint64
	switch {
	case indexLatest:
		head, err := rpcClient.HeadBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get head block: %w", err)
		}
		var start uint64
		if head > cfg.Scanner.Backfill {
			start = head - cfg.Scanner.Backfill
		}
		log.Infof("starting from network head %d minus %d backfill blocks: %d",
			head, cfg.Scanner.Backfill, start)
		startBlock = &start
	case cmd.Flags().Changed("start-block"):
		startBlock = &indexStartBlock
	}

	sc := scanner.New(cfg.Scanner, cfg.Token.Address(), rpcClient, st, detector, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Run(gctx, startBlock) })

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, log.WithComponent("metrics"))
		g.Go(func() error { return metricsServer.Run(gctx) })
	}

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, st, log.WithComponent(common.ComponentAPI))
		g.Go(func() error { return apiServer.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := internalconfig.Load(configPath)
	if err != nil {
		return err
	}

	filter := pkgstore.QueryFilter{Limit: queryLimit}

	if queryAddress != "" {
		if !ethcommon.IsHexAddress(queryAddress) {
			return fmt.Errorf("%w: invalid address %q", errInvalidArgs, queryAddress)
		}
		addr := ethcommon.HexToAddress(queryAddress)
		filter.Address = &addr
	}
	if cmd.Flags().Changed("from-block") {
		filter.FromBlock = &queryFromBlock
	}
	if cmd.Flags().Changed("to-block") {
		filter.ToBlock = &queryToBlock
	}

	st, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := st.QueryEvents(cmd.Context(), filter)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}

	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := internalconfig.Load(configPath)
	if err != nil {
		return err
	}

	st, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("Database Statistics:")
	fmt.Printf("Total transfers: %d\n", stats.TotalTransfers)
	fmt.Printf("Unique addresses: %d\n", stats.UniqueAddresses)
	fmt.Printf("Earliest event block: %s\n", formatBlock(stats.EarliestBlock))
	fmt.Printf("Latest event block: %s\n", formatBlock(stats.LatestBlock))
	fmt.Printf("Processed range: %s - %s\n",
		formatBlock(stats.FirstProcessed), formatBlock(stats.LastProcessed))

	return nil
}

// openStore opens the database for the read-only commands. Queries work
// against a missing store too: migrations create the empty schema.
func openStore(cfg *pkgconfig.Config) (*internalstore.SQLStore, func(), error) {
	log := logger.NewNopLogger()

	if err := migrations.RunMigrations(log, cfg.Database.Path); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return internalstore.New(database, log), func() { database.Close() }, nil
}

func formatBlock(n *uint64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
