package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MarkoPoloResearchLab/cartsync/internal/cartapi"
	"github.com/MarkoPoloResearchLab/cartsync/internal/logging"
	"github.com/MarkoPoloResearchLab/cartsync/internal/tokenstore"
	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagBaseURL      = "base-url"
	flagTokenFile    = "token-file"
	flagTimeout      = "timeout"
	flagVerbose      = "verbose"
	configBaseURL    = "base_url"
	configTokenFile  = "token_file"
	configTimeout    = "timeout"
	defaultBaseURL   = "http://localhost:9090"
	defaultTokenFile = ".cartsync/token"
	envPrefix        = "CARTCTL"
)

type runtimeConfig struct {
	BaseURL   string
	TokenFile string
	Timeout   time.Duration
	Verbose   bool
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cartctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Command-line client for the storefront cart",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	cmd.PersistentFlags().String(flagBaseURL, defaultBaseURL, "cart service base URL")
	cmd.PersistentFlags().String(flagTokenFile, "", "path of the stored access token (default ~/"+defaultTokenFile+")")
	cmd.PersistentFlags().Duration(flagTimeout, 0, "per-request timeout")
	cmd.PersistentFlags().Bool(flagVerbose, false, "log every cart operation")

	cmd.AddCommand(
		newLoginCommand(cfg),
		newProductsCommand(cfg),
		newShowCommand(cfg),
		newAddCommand(cfg),
		newShiftCommand(cfg),
		newRemoveCommand(cfg),
		newClearCommand(cfg),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for configKey, flagName := range map[string]string{
		configBaseURL:   flagBaseURL,
		configTokenFile: flagTokenFile,
		configTimeout:   flagTimeout,
	} {
		if err := v.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.BaseURL = strings.TrimSpace(v.GetString(configBaseURL))
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.TokenFile = strings.TrimSpace(v.GetString(configTokenFile))
	if cfg.TokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.TokenFile = filepath.Join(home, defaultTokenFile)
	}
	cfg.Timeout = v.GetDuration(configTimeout)
	cfg.Verbose, _ = cmd.Flags().GetBool(flagVerbose)
	return nil
}

// session bundles the pieces every cart subcommand needs.
type session struct {
	client  *cartapi.Client
	tokens  *tokenstore.File
	service *cart.Service
}

func openSession(cfg *runtimeConfig) (*session, error) {
	client, err := cartapi.New(cartapi.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	tokens, err := tokenstore.NewFile(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	options := []cart.ServiceOption{}
	if cfg.Verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("logger init: %w", err)
		}
		options = append(options, cart.WithOperationLogger(logging.NewZapOperationLogger(logger)))
	}
	service, err := cart.NewService(client, tokens, options...)
	if err != nil {
		return nil, err
	}
	return &session{client: client, tokens: tokens, service: service}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newLoginCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "login <phone>",
		Short: "Authenticate by phone and store the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			phone := args[0]
			code, err := sess.client.RequestLoginCode(ctx, phone)
			if err != nil {
				return err
			}
			token, err := sess.client.VerifyLoginCode(ctx, phone, code)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.TokenFile), 0o700); err != nil {
				return fmt.Errorf("prepare token directory: %w", err)
			}
			if err := sess.tokens.Store(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", phone)
			return nil
		},
	}
}

func newProductsCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the product catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			products, err := sess.client.ListProducts(ctx, "")
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tNAME\tPRICE\tCATEGORY\tVENDOR")
			for _, product := range products {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					product.ID, product.Name, formatCents(product.PriceCents), product.Category, product.Vendor)
			}
			return writer.Flush()
		},
	}
}

func newShowCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Fetch and print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.service.Close()
			snapshot, err := sess.service.Refresh(ctx)
			if err != nil {
				return err
			}
			return printSnapshot(cmd, snapshot)
		},
	}
}

func newAddCommand(cfg *runtimeConfig) *cobra.Command {
	var quantity int64
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.service.Close()
			if _, err := sess.service.Refresh(ctx); err != nil {
				return err
			}

			product, err := sess.client.FetchProduct(ctx, args[0])
			if err != nil {
				return err
			}
			productID, err := cart.NewProductID(product.ID)
			if err != nil {
				return err
			}
			unitPrice, err := cart.NewPriceCents(product.PriceCents)
			if err != nil {
				return err
			}
			parsedQuantity, err := cart.NewQuantity(quantity)
			if err != nil {
				return err
			}

			result, err := sess.service.AddProduct(ctx, productID, product.Name, unitPrice, parsedQuantity)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	cmd.Flags().Int64Var(&quantity, "qty", 1, "units to add")
	return cmd
}

func newShiftCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "shift <item-id> <delta>",
		Short: "Shift a cart line's quantity by a signed amount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse delta %q: %w", args[1], err)
			}
			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.service.Close()
			if _, err := sess.service.Refresh(ctx); err != nil {
				return err
			}

			itemID, err := cart.NewItemID(args[0])
			if err != nil {
				return err
			}
			parsedDelta, err := cart.NewQuantityDelta(delta)
			if err != nil {
				return err
			}
			result, err := sess.service.ChangeQuantity(ctx, itemID, parsedDelta)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
}

func newRemoveCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.service.Close()
			if _, err := sess.service.Refresh(ctx); err != nil {
				return err
			}

			itemID, err := cart.NewItemID(args[0])
			if err != nil {
				return err
			}
			result, err := sess.service.RemoveItem(ctx, itemID)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
}

func newClearCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cart line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.service.Close()
			if _, err := sess.service.Refresh(ctx); err != nil {
				return err
			}

			result, err := sess.service.Clear(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
}

func printResult(cmd *cobra.Command, result cart.MutationResult) error {
	fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", result.Status)
	return printSnapshot(cmd, result.Snapshot)
}

func printSnapshot(cmd *cobra.Command, snapshot cart.Snapshot) error {
	if snapshot.IsEmpty() {
		fmt.Fprintln(cmd.OutOrStdout(), "cart is empty")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ITEM\tPRODUCT\tNAME\tQTY\tUNIT\tLINE")
	for _, item := range snapshot.Items() {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.ID.String(),
			item.ProductID.String(),
			item.Name,
			item.Quantity.Int64(),
			formatCents(item.UnitPriceCents.Int64()),
			formatCents(item.LineTotalCents()))
	}
	fmt.Fprintf(writer, "TOTAL\t\t\t%d\t\t%s\n", snapshot.TotalUnits(), formatCents(snapshot.TotalCents()))
	return writer.Flush()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
