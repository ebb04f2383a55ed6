package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nft_messenger/internal/blobstore"
	"nft_messenger/internal/config"
	"nft_messenger/internal/ledger"
	"nft_messenger/internal/service/app"
	"nft_messenger/internal/utils/log"
)

type options struct {
	configFile string
	keyFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "nftmsg",
		Short:        "Send and read end-to-end encrypted messages minted as NFTs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.keyFile, "key", "", "hex private key file (default NFTMSG_KEY_FILE)")

	root.AddCommand(
		newKeygenCmd(opts),
		newPubkeyCmd(opts),
		newPublishCmd(opts),
		newLookupCmd(opts),
		newSendCmd(opts),
		newReadCmd(opts),
		newInboxCmd(opts),
	)
	return root
}

func newKeygenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create a new account key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			path := keyPath(opts, cfg)
			if path == "" {
				return errors.New("no key file given, use --key")
			}

			id, err := app.GenerateIdentity()
			if err != nil {
				return err
			}
			if err := id.Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Address().Hex())
			return nil
		},
	}
}

func newPubkeyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the account address and its encryption public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			id, err := loadIdentity(opts, cfg)
			if err != nil {
				return err
			}
			pub, err := id.EncryptionPublicKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id.Address().Hex(), pub)
			return nil
		},
	}
}

func newPublishCmd(opts *options) *cobra.Command {
	var onchain bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Register the encryption public key with the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeFn, err := newClient(cmd.Context(), opts, onchain)
			if err != nil {
				return err
			}
			defer closeFn()

			pub, err := client.PublishKey(cmd.Context(), onchain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pub)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onchain, "onchain", false, "also publish the key to the contract")
	return cmd
}

func newLookupCmd(opts *options) *cobra.Command {
	var onchain bool
	cmd := &cobra.Command{
		Use:   "lookup <address>",
		Short: "Show the encryption public key published for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := newClient(cmd.Context(), opts, onchain)
			if err != nil {
				return err
			}
			defer closeFn()

			key, err := client.LookupKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&onchain, "onchain", false, "fall back to the contract's key registry")
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient> <message>",
		Short: "Encrypt a message, mint it to the recipient and index it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := newClient(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer closeFn()

			ids, err := client.Send(cmd.Context(), args[0], args[1])
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return err
		},
	}
}

func newReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read <tokenId>",
		Short: "Decrypt one message token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := newClient(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer closeFn()

			msg, err := client.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if msg.CID == "" {
				return fmt.Errorf("token %s has no message", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "from: %s\nto: %s\ncid: %s\n\n%s\n", msg.Sender, msg.Recipient, msg.CID, msg.Plaintext)
			return nil
		},
	}
}

func newInboxCmd(opts *options) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Open the interactive inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeFn, err := newClient(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer closeFn()

			if plain {
				msgs, err := client.Inbox(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range msgs {
					fmt.Fprintf(cmd.OutOrStdout(), "#%s %s -> %s: %s\n", m.TokenID, m.Sender, m.Recipient, m.Plaintext)
				}
				return nil
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return app.NewUI(client).Run(cmd.Context(), cfg.Client.PollInterval)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the inbox and exit")
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, err
	}
	return cfg, nil
}

func keyPath(opts *options, cfg *config.Config) string {
	if opts.keyFile != "" {
		return opts.keyFile
	}
	return cfg.Client.KeyFile
}

func loadIdentity(opts *options, cfg *config.Config) (*app.Identity, error) {
	path := keyPath(opts, cfg)
	if path == "" {
		return nil, errors.New("no key file given, use --key or NFTMSG_KEY_FILE")
	}
	return app.LoadIdentity(path)
}

// newClient wires the backend API, the blob reader and, when withLedger is
// set, a signing connection to the messenger contract.
func newClient(ctx context.Context, opts *options, withLedger bool) (*app.App, func(), error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	id, err := loadIdentity(opts, cfg)
	if err != nil {
		return nil, nil, err
	}

	api, err := app.NewAPI(cfg.Client.BackendURL, cfg.Server.HTTPTimeout)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := openBlobReader(ctx, &cfg.Blob, cfg.Server.HTTPTimeout)
	if err != nil {
		return nil, nil, err
	}

	if !withLedger {
		return app.NewApp(api, nil, id, blobs), func() {}, nil
	}

	contract := cfg.Chain.ContractAddress
	if contract == "" {
		remote, err := api.Config(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch backend config: %w", err)
		}
		if remote.ContractAddress == nil {
			return nil, nil, errors.New("no contract address configured locally or on the backend")
		}
		contract = *remote.ContractAddress
	}

	chain, err := ledger.Dial(ctx, cfg.Chain.RPC, contract, id.PrivateKey())
	if err != nil {
		return nil, nil, err
	}
	account, err := chain.Account()
	if err != nil {
		chain.Close()
		return nil, nil, err
	}
	log.Debug("ledger connected", zap.String("contract", contract), zap.String("account", account.Hex()))

	return app.NewApp(api, chain, id, blobs), chain.Close, nil
}

// openBlobReader reads through public gateways unless the deployment keeps
// blobs somewhere the client can reach directly.
func openBlobReader(ctx context.Context, blob *config.BlobConfig, timeout time.Duration) (blobstore.Store, error) {
	switch blob.Backend {
	case "s3":
		return blobstore.NewS3Store(ctx, blob.S3Bucket, blob.S3Region)
	case "local":
		return blobstore.NewLocalStore(blob.LocalDir)
	default:
		return blobstore.NewIPFSStore(blob.IPFSAPIURL, blob.Gateways, timeout), nil
	}
}
