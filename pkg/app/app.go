// Package app wires configuration, the ledger node and the HTTP API into the
// agrichain command line.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agrichain/pkg/config"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logging"
	"agrichain/pkg/version"
)

const defaultConfigPath = "agrichain.yaml"

// cli holds the state shared by every subcommand.
type cli struct {
	logger     *zap.Logger
	configPath string
	port       int
	storage    string
	path       string
	owner      string
	logLevel   string
	domain     string
	// listener replaces the configured port when set.
	listener net.Listener
}

// Run parses args and executes the selected command. A nil logger is built
// from the logging section of the configuration.
func Run(ctx context.Context, args []string, logger *zap.Logger) error {
	root := newRootCommand(&cli{logger: logger})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "agrichain",
		Short:         "Agricultural supply-chain ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          c.runServe,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	flags.IntVar(&c.port, "port", 0, "HTTP port when no TLS domain is configured")
	flags.StringVar(&c.storage, "storage-type", "", "world-state backend: memory, sqlite, sqlite3 or leveldb")
	flags.StringVar(&c.path, "storage-path", "", "database file or directory for the storage backend")
	flags.StringVar(&c.owner, "owner", "", "contract owner principal")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&c.domain, "domain", "", "serve HTTPS on 80/443 with an ephemeral certificate for this domain")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE:  c.runServe,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "agrichain version %s\n", version.Version())
				return err
			},
		},
		c.configCommand(),
		c.callCommand(),
		c.contractsCommand(),
	)
	return root
}

// loadConfig reads the configuration file and applies explicitly set flags.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = c.port
	}
	if flags.Changed("storage-type") {
		cfg.Storage.Type = c.storage
	}
	if flags.Changed("storage-path") {
		cfg.Storage.Path = c.path
	}
	if flags.Changed("owner") {
		cfg.Governance.ContractOwner = c.owner
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if flags.Changed("domain") {
		cfg.Server.TLSDomain = c.domain
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and returns a logger for it. level is nil
// when the logger was supplied by the caller.
func (c *cli) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, *zap.AtomicLevel, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.logger != nil {
		return cfg, c.logger, nil, nil
	}
	logger, level, err := logging.New(logging.Config{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, &level, nil
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, level, err := c.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting agrichain", zap.String("version", version.Version()), zap.String("config", c.configPath))
	return serve(cmd.Context(), serveOptions{
		cfg:        cfg,
		configPath: c.configPath,
		level:      level,
		listener:   c.listener,
	}, logger)
}

func (c *cli) configCommand() *cobra.Command {
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCmd)
	return cmd
}

func (c *cli) callCommand() *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "call <contract> <function> [args...]",
		Short: "Invoke a contract function against the configured storage",
		Long: "Each argument is parsed as JSON when possible and passed as a string otherwise,\n" +
			"so `call farm-verification register-farm farm-1 \"North Field\" Iowa` works unquoted.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := c.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			tx := ledger.NewTx("")
			if strings.TrimSpace(sender) != "" {
				p, err := ledger.ParsePrincipal(sender)
				if err != nil {
					return err
				}
				tx = ledger.NewTx(p)
			}

			ctx := cmd.Context()
			node, err := OpenNode(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer node.Close()

			result, err := node.Registry.Invoke(ctx, tx, args[0], args[1], callArgs(args[2:]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "principal that signs the call")
	return cmd
}

func (c *cli) contractsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "List the callable contract functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := c.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			node, err := OpenNode(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer node.Close()

			out := cmd.OutOrStdout()
			for _, name := range node.Registry.Contracts() {
				for _, fn := range node.Registry.Functions(name) {
					kind := "read"
					if fn.Write {
						kind = "write"
					}
					if _, err := fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", name, fn.Name, fn.Arity, kind); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// callArgs keeps valid JSON as is and encodes anything else as a JSON string.
func callArgs(args []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		if json.Valid([]byte(a)) {
			out = append(out, json.RawMessage(a))
			continue
		}
		encoded, _ := json.Marshal(a)
		out = append(out, encoded)
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("unable to encode result: %w", err)
	}
	return nil
}
