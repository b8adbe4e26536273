package client

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-fhe-client/internal/decrypt"
	"github.com/kashguard/go-fhe-client/internal/encrypt"
	"github.com/kashguard/go-fhe-client/internal/provider"
	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// Status 客户端状态
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

var (
	// ErrAlreadyInitializing 同一时刻只允许一次在途初始化
	ErrAlreadyInitializing = errors.New("initialization already in flight")

	// ErrNotInitialized 客户端尚未就绪
	ErrNotInitialized = errors.New("client is not initialized")
)

// Config 客户端配置
type Config struct {
	// Provider 与 RPCEndpoint 二选一；Provider 优先
	Provider    provider.Provider
	RPCEndpoint string

	// ExplicitChainID 显式链 ID，优先于查询 provider
	ExplicitChainID *uint64

	// SimulatedNetworks 补充的模拟网络表（链 ID → RPC 地址）
	SimulatedNetworks map[uint64]string

	// RelayerURL 线上网络的 relayer 网关地址
	RelayerURL string

	// KMSVerifierAddress / ACLAddress 线上网络的合约地址
	KMSVerifierAddress string
	ACLAddress         string

	// KeyStore 公钥材料缓存
	KeyStore storage.KVStore

	// SignatureStore 授权签名缓存
	SignatureStore storage.KVStore

	// OnPhase 初始化阶段回调，透传给会话工厂；可为 nil
	OnPhase func(session.Phase)
}

// Override Reinit 时应用的部分配置覆盖；nil 字段保持不变
type Override struct {
	Provider          provider.Provider
	RPCEndpoint       *string
	ExplicitChainID   *uint64
	SimulatedNetworks map[uint64]string
	RelayerURL        *string
}

// factoryFunc 会话工厂，测试中可替换
type factoryFunc func(ctx context.Context, cfg *session.FactoryConfig) (*session.Session, error)

// statusListener 带订阅序号的状态监听器
type statusListener struct {
	id int
	fn func(Status)
}

// pendingNotification 已提交但尚未派发的状态通知
type pendingNotification struct {
	status    Status
	listeners []statusListener
}

// Client 会话客户端状态机。
// 至多持有一个活动会话；不变式：status == ready 当且仅当
// 持有非空会话。状态只由 Init/Abort/Reinit/Dispose 驱动。
type Client struct {
	mu         sync.Mutex
	cfg        Config
	status     Status
	lastErr    error
	sess       *session.Session
	cancel     context.CancelFunc
	generation uint64

	nextListenerID int
	listeners      []statusListener
	pending        []pendingNotification
	notifying      bool

	factory factoryFunc
}

// New 创建客户端，初始状态 idle
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		status:  StatusIdle,
		factory: session.Create,
	}
}

// Status 返回当前状态
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsReady 派生状态，从状态枚举即时计算而不是冗余存储
func (c *Client) IsReady() bool {
	return c.Status() == StatusReady
}

// LastError 返回最近一次初始化失败的原因
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Session 返回活动会话；未就绪时报错
func (c *Client) Session() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusReady || c.sess == nil {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	return c.sess, nil
}

// OnStatusChange 订阅状态变更，返回取消订阅函数。
// 每次状态转换按订阅顺序通知所有当前订阅者；并发的状态转换
// 按提交顺序派发，订阅者不会观察到乱序的转换。
func (c *Client) OnStatusChange(fn func(Status)) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners = append(c.listeners, statusListener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// setStatusLocked 更新状态并把通知连同监听器快照压入派发队列（需持有锁）。
// 通知的派发顺序即状态的提交顺序。
func (c *Client) setStatusLocked(status Status) {
	c.status = status
	snapshot := make([]statusListener, len(c.listeners))
	copy(snapshot, c.listeners)
	c.pending = append(c.pending, pendingNotification{status: status, listeners: snapshot})
}

// flushNotifications 锁外派发队列中的通知。
// 任一时刻只有一个派发者；并发的状态变更只入队，由在途派发者带出，
// 监听器因此总是按提交顺序收到通知。监听器在回调里再驱动状态机
// 也只会入队，不会递归派发。
func (c *Client) flushNotifications() {
	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		for _, l := range next.listeners {
			l.fn(next.status)
		}

		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

// Init 初始化会话。
// 已在初始化中时拒绝（不排队）；已就绪时是无操作成功。
// 失败或取消转入 error 状态并把原因重新抛给调用方。
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusInitializing:
		c.mu.Unlock()
		return errors.WithStack(ErrAlreadyInitializing)
	case StatusReady:
		c.mu.Unlock()
		return nil
	}

	c.generation++
	gen := c.generation
	initCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.lastErr = nil
	c.setStatusLocked(StatusInitializing)
	factoryCfg := c.factoryConfigLocked()
	c.mu.Unlock()

	c.flushNotifications()

	sess, err := c.factory(initCtx, factoryCfg)
	cancel()

	c.mu.Lock()
	if c.generation != gen {
		// abort 或 reinit 已经推进了状态机：迟到的工厂结果被丢弃，
		// 不允许它把状态翻回 ready
		c.mu.Unlock()
		if err == nil {
			log.Debug().Msg("Discarding stale session from an aborted initialization")
		}
		return errors.WithStack(types.ErrAborted)
	}

	if err != nil {
		c.sess = nil
		c.lastErr = err
		c.cancel = nil
		c.setStatusLocked(StatusError)
		c.mu.Unlock()
		c.flushNotifications()
		return err
	}

	c.sess = sess
	c.lastErr = nil
	c.cancel = nil
	c.setStatusLocked(StatusReady)
	c.mu.Unlock()
	c.flushNotifications()
	return nil
}

// Abort 取消在途初始化并立即回到 idle。
// 工厂调用可能尚未真正退栈；它的迟到结果会因为代数不匹配被丢弃，
// 调用方需容忍这个短暂窗口。
func (c *Client) Abort() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.sess = nil
	c.lastErr = nil
	c.setStatusLocked(StatusIdle)
	c.mu.Unlock()
	c.flushNotifications()
}

// Reinit 等价于 Abort 后应用配置覆盖再 Init
func (c *Client) Reinit(ctx context.Context, override *Override) error {
	c.Abort()

	c.mu.Lock()
	if override != nil {
		if override.Provider != nil {
			c.cfg.Provider = override.Provider
		}
		if override.RPCEndpoint != nil {
			c.cfg.RPCEndpoint = *override.RPCEndpoint
			if override.Provider == nil {
				// endpoint 变更后旧 provider 不再有效
				c.cfg.Provider = nil
			}
		}
		if override.ExplicitChainID != nil {
			c.cfg.ExplicitChainID = override.ExplicitChainID
		}
		if override.SimulatedNetworks != nil {
			c.cfg.SimulatedNetworks = override.SimulatedNetworks
		}
		if override.RelayerURL != nil {
			c.cfg.RelayerURL = *override.RelayerURL
		}
	}
	c.mu.Unlock()

	return c.Init(ctx)
}

// Dispose 终态清理：Abort 并移除所有状态监听器
func (c *Client) Dispose() {
	c.Abort()

	c.mu.Lock()
	c.listeners = nil
	c.mu.Unlock()
}

// factoryConfigLocked 从客户端配置组装工厂配置（需持有锁）
func (c *Client) factoryConfigLocked() *session.FactoryConfig {
	return &session.FactoryConfig{
		Provider:           c.cfg.Provider,
		RPCEndpoint:        c.cfg.RPCEndpoint,
		ExplicitChainID:    c.cfg.ExplicitChainID,
		SimulatedNetworks:  c.cfg.SimulatedNetworks,
		RelayerURL:         c.cfg.RelayerURL,
		KMSVerifierAddress: c.cfg.KMSVerifierAddress,
		ACLAddress:         c.cfg.ACLAddress,
		KeyStore:           c.cfg.KeyStore,
		OnPhase:            c.cfg.OnPhase,
	}
}

// CreateEncryptedInput 打开绑定到 (合约, 用户) 的加密输入 builder。
// 会话引用在调用开始时固定：并发的 Reinit 换出会话不影响
// 已经打开的 builder。
func (c *Client) CreateEncryptedInput(contract, user common.Address) (*encrypt.Builder, error) {
	sess, err := c.Session()
	if err != nil {
		return nil, err
	}
	return sess.CreateEncryptedInput(contract, user), nil
}

// Decrypt 授权解密一批请求
func (c *Client) Decrypt(ctx context.Context, requests []decrypt.Request, sgn signer.Signer, opts *decrypt.Options) (map[string]types.ClearValue, error) {
	orch, err := c.decryptor()
	if err != nil {
		return nil, err
	}
	return orch.Decrypt(ctx, requests, sgn, opts)
}

// DecryptSingle 授权解密单个句柄
func (c *Client) DecryptSingle(ctx context.Context, handle, contractAddress string, sgn signer.Signer, opts *decrypt.Options) (types.ClearValue, error) {
	orch, err := c.decryptor()
	if err != nil {
		return types.ClearValue{}, err
	}
	return orch.DecryptSingle(ctx, handle, contractAddress, sgn, opts)
}

// PublicDecrypt 公共解密一批句柄
func (c *Client) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	orch, err := c.decryptor()
	if err != nil {
		return nil, err
	}
	return orch.PublicDecrypt(ctx, handles)
}

// PublicDecryptSingle 公共解密单个句柄
func (c *Client) PublicDecryptSingle(ctx context.Context, handle string) (types.ClearValue, error) {
	orch, err := c.decryptor()
	if err != nil {
		return types.ClearValue{}, err
	}
	return orch.PublicDecryptSingle(ctx, handle)
}

// decryptor 以调用开始时的会话快照构建解密编排器
func (c *Client) decryptor() (*decrypt.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusReady || c.sess == nil {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	return decrypt.NewOrchestrator(c.sess, c.cfg.SignatureStore), nil
}
