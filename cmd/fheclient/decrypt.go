package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-fhe-client/internal/config"
	"github.com/kashguard/go-fhe-client/internal/decrypt"
	"github.com/kashguard/go-fhe-client/internal/signer"
)

// newDecryptCmd 授权解密一个句柄
func newDecryptCmd(cfg config.Client) *cobra.Command {
	var handle string
	var contractAddress string
	var forceRefresh bool

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Decrypt a ciphertext handle under the caller's authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if cfg.PrivateKey == "" {
				return errors.New("FHE_PRIVATE_KEY is required")
			}
			sgn, err := signer.NewPrivateKeySignerFromHex(cfg.PrivateKey)
			if err != nil {
				return err
			}

			c, err := newClient(cfg, nil)
			if err != nil {
				return err
			}
			defer c.Dispose()

			if err := c.Init(ctx); err != nil {
				return err
			}

			value, err := c.DecryptSingle(ctx, handle, contractAddress, sgn, &decrypt.Options{
				ForceRefresh: forceRefresh,
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("handle", handle).
				Str("type", value.Type.String()).
				Str("value", value.String()).
				Msg("Decrypted")

			return nil
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "ciphertext handle")
	cmd.Flags().StringVar(&contractAddress, "contract", "", "contract the handle belongs to")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "force a fresh authorization signature")
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("contract")

	return cmd
}

// newPublicDecryptCmd 公共解密一个句柄，无需签名器
func newPublicDecryptCmd(cfg config.Client) *cobra.Command {
	var handle string

	cmd := &cobra.Command{
		Use:   "public",
		Short: "Decrypt a publicly decryptable ciphertext handle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			c, err := newClient(cfg, nil)
			if err != nil {
				return err
			}
			defer c.Dispose()

			if err := c.Init(ctx); err != nil {
				return err
			}

			value, err := c.PublicDecryptSingle(ctx, handle)
			if err != nil {
				return err
			}

			log.Info().
				Str("handle", handle).
				Str("type", value.Type.String()).
				Str("value", value.String()).
				Msg("Publicly decrypted")

			return nil
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "ciphertext handle")
	_ = cmd.MarkFlagRequired("handle")

	return cmd
}
