package engine

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

// 后端模块加载和初始化是进程级一次性操作。
// sync.Once 保证并发的首批调用者等待同一次在途初始化，而不是各自
// 竞争；结果（含失败）被永久缓存，进程无法从已初始化状态降级。
// 这是已接受的限制，不是缺陷。
var (
	loadOnce sync.Once
	loadErr  error

	initOnce sync.Once
	initErr  error
)

// LoadBackend 加载重量级加密后端，每进程至多执行一次。
// ctx 只约束首次加载；后续调用直接返回缓存结果。
func LoadBackend(ctx context.Context) error {
	loadOnce.Do(func() {
		log.Debug().Msg("Loading FHE backend module")
		loadErr = loadBackend(ctx)
		if loadErr == nil {
			log.Debug().Msg("FHE backend module loaded")
		}
	})
	return loadErr
}

// InitBackend 初始化已加载的后端，幂等
func InitBackend(ctx context.Context) error {
	initOnce.Do(func() {
		if loadErr != nil {
			initErr = errors.Wrap(loadErr, "backend was never loaded")
			return
		}
		log.Debug().Msg("Initializing FHE backend")
		initErr = initBackend(ctx)
		if initErr == nil {
			log.Debug().Msg("FHE backend initialized")
		}
	})
	return initErr
}

// loadBackend 执行实际加载：校验密封原语在本进程可用
func loadBackend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "backend load cancelled")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return errors.Wrap(err, "entropy source unavailable")
	}
	if _, err := chacha20poly1305.New(key); err != nil {
		return errors.Wrap(err, "sealing cipher unavailable")
	}

	return nil
}

// initBackend 执行实际初始化
func initBackend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "backend init cancelled")
	}
	return nil
}
