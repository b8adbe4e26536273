package main

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-fhe-client/internal/config"
	"github.com/kashguard/go-fhe-client/internal/encrypt"
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// newEncryptCmd 加密一批明文值并打印句柄与证明
func newEncryptCmd(cfg config.Client) *cobra.Command {
	var contractAddress string
	var values []string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt typed values for a contract and print the resulting handles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if cfg.PrivateKey == "" {
				return errors.New("FHE_PRIVATE_KEY is required")
			}
			sgn, err := signer.NewPrivateKeySignerFromHex(cfg.PrivateKey)
			if err != nil {
				return err
			}

			if !common.IsHexAddress(contractAddress) {
				return errors.Errorf("invalid contract address: %q", contractAddress)
			}

			c, err := newClient(cfg, nil)
			if err != nil {
				return err
			}
			defer c.Dispose()

			if err := c.Init(ctx); err != nil {
				return err
			}

			builder, err := c.CreateEncryptedInput(common.HexToAddress(contractAddress), sgn.Address())
			if err != nil {
				return err
			}

			for _, raw := range values {
				if err := appendTypedValue(builder, raw); err != nil {
					return err
				}
			}

			result, err := builder.Finalize(ctx)
			if err != nil {
				return err
			}

			for i, handle := range result.Handles {
				log.Info().Int("index", i).Str("handle", handle).Msg("Encrypted value")
			}
			log.Info().Str("input_proof", "0x"+hex.EncodeToString(result.InputProof)).Msg("Batch proof")

			return nil
		},
	}

	cmd.Flags().StringVar(&contractAddress, "contract", "", "target contract address")
	cmd.Flags().StringArrayVar(&values, "value", nil, "typed value, e.g. uint32:5, bool:true, address:0x...")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

// valueTypeNames CLI 类型名到逻辑类型的映射
var valueTypeNames = map[string]types.FheType{
	"bool":    types.FheBool,
	"uint8":   types.FheUint8,
	"uint16":  types.FheUint16,
	"uint32":  types.FheUint32,
	"uint64":  types.FheUint64,
	"uint128": types.FheUint128,
	"uint256": types.FheUint256,
	"address": types.FheAddress,
}

// appendTypedValue 解析 "type:value" 形式的参数并加入 builder
func appendTypedValue(builder *encrypt.Builder, raw string) error {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return errors.Errorf("malformed value %q, expected type:value", raw)
	}

	fheType, ok := valueTypeNames[parts[0]]
	if !ok {
		return errors.Errorf("unknown value type %q", parts[0])
	}

	switch fheType {
	case types.FheBool:
		builder.AddBool(strings.EqualFold(parts[1], "true"))
		return nil
	case types.FheAddress:
		if !common.IsHexAddress(parts[1]) {
			return errors.Errorf("invalid address value %q", parts[1])
		}
		builder.AddAddress(common.HexToAddress(parts[1]))
		return nil
	}

	value, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return errors.Errorf("invalid integer value %q", parts[1])
	}
	if err := types.ValidateClearValue(fheType, value); err != nil {
		return err
	}

	switch fheType {
	case types.FheUint8:
		builder.Add8(uint8(value.Uint64()))
	case types.FheUint16:
		builder.Add16(uint16(value.Uint64()))
	case types.FheUint32:
		builder.Add32(uint32(value.Uint64()))
	case types.FheUint64:
		builder.Add64(value.Uint64())
	case types.FheUint128:
		builder.Add128(value)
	case types.FheUint256:
		builder.Add256(value)
	}

	return nil
}
