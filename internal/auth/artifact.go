package auth

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/kashguard/go-fhe-client/internal/types"
)

// ValidityDays 授权工件的固定有效期（天）
const ValidityDays uint64 = 10

// Artifact 时间受限的解密授权工件。
// 绑定 (用户, 合约地址集合)，创建后不再修改；刷新产生新工件
// 并替换缓存项。
type Artifact struct {
	KeyPair           *types.KeyPair `json:"keyPair"`
	Signature         []byte         `json:"signature"`
	UserAddress       common.Address `json:"userAddress"`
	ContractAddresses []string       `json:"contractAddresses"`
	StartTimestamp    int64          `json:"startTimestamp"`
	DurationDays      uint64         `json:"durationDays"`
}

// ExpiresAt 返回过期时间
func (a *Artifact) ExpiresAt() time.Time {
	return time.Unix(a.StartTimestamp, 0).Add(time.Duration(a.DurationDays) * 24 * time.Hour)
}

// Covers 检查请求的合约集合是否为工件覆盖集合的子集
func (a *Artifact) Covers(contracts []string) bool {
	covered := make(map[string]bool, len(a.ContractAddresses))
	for _, addr := range a.ContractAddresses {
		covered[strings.ToLower(addr)] = true
	}
	for _, addr := range contracts {
		if !covered[strings.ToLower(addr)] {
			return false
		}
	}
	return true
}

// Validate 检查工件对给定 (用户, 合约集合) 在 now 时刻是否有效。
// 缓存加载的工件必须独立通过该检查才可信：过期或被篡改的
// 缓存项不能被静默使用。
func (a *Artifact) Validate(user common.Address, contracts []string, now time.Time) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if !a.KeyPair.Valid() {
		return errors.New("artifact keypair is incomplete")
	}
	if len(a.Signature) == 0 {
		return errors.New("artifact has no signature")
	}
	if a.UserAddress != user {
		return errors.Errorf("artifact belongs to %s, not %s", a.UserAddress.Hex(), user.Hex())
	}
	if !now.Before(a.ExpiresAt()) {
		return errors.Errorf("artifact expired at %s", a.ExpiresAt().UTC().Format(time.RFC3339))
	}
	if !a.Covers(contracts) {
		return errors.New("artifact does not cover the requested contract set")
	}
	return nil
}
