package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
)

// 全局池管理器
var (
	globalManager            *Manager
	globalManagerMu          sync.Mutex
	globalManagerInitialized uint32
)

// GlobalConfig 全局池配置
type GlobalConfig struct {
	// DefaultPool 默认池配置
	DefaultPool *Config
	// IngestPool 摄取池配置
	IngestPool *Config
	// BackgroundPool 后台任务池配置
	BackgroundPool *Config
}

// DefaultGlobalConfig 返回默认全局配置
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		DefaultPool:    DefaultPoolConfig(),
		IngestPool:     IngestPoolConfig(),
		BackgroundPool: BackgroundPoolConfig(),
	}
}

// InitGlobal 初始化全局池管理器，自动注册常用池类型
func InitGlobal() error {
	return InitGlobalWithConfig(nil)
}

// InitGlobalWithConfig 使用自定义配置初始化全局池管理器
func InitGlobalWithConfig(config *GlobalConfig) error {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if atomic.LoadUint32(&globalManagerInitialized) == 1 {
		return nil // 已初始化
	}

	if config == nil {
		config = DefaultGlobalConfig()
	}

	manager := NewManager()

	pools := map[Type]*Config{
		DefaultPool:    config.DefaultPool,
		IngestPool:     config.IngestPool,
		BackgroundPool: config.BackgroundPool,
	}

	for poolType, poolConfig := range pools {
		if poolConfig == nil {
			continue
		}
		if err := manager.RegisterWithType(poolType, poolConfig); err != nil {
			// 清理已注册的池
			manager.ReleaseAll()
			return err
		}
	}

	globalManager = manager
	atomic.StoreUint32(&globalManagerInitialized, 1)

	logger.Infow("全局池管理器初始化完成", "pools", manager.List())

	return nil
}

// GetGlobal 获取全局池管理器
func GetGlobal() *Manager {
	if atomic.LoadUint32(&globalManagerInitialized) == 0 {
		// 自动初始化
		if err := InitGlobal(); err != nil {
			logger.Errorw("自动初始化全局池管理器失败", "error", err)
			return nil
		}
	}
	return globalManager
}

// CloseGlobal 关闭全局池管理器
func CloseGlobal() error {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if atomic.LoadUint32(&globalManagerInitialized) == 0 {
		return nil
	}

	if globalManager != nil {
		globalManager.ReleaseAll()
		globalManager = nil
	}
	atomic.StoreUint32(&globalManagerInitialized, 0)

	logger.Infow("全局池管理器已关闭")
	return nil
}

// CloseGlobalTimeout 带超时关闭全局池管理器
func CloseGlobalTimeout(timeout time.Duration) error {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if atomic.LoadUint32(&globalManagerInitialized) == 0 {
		return nil
	}

	var err error
	if globalManager != nil {
		err = globalManager.ReleaseAllTimeout(timeout)
		globalManager = nil
	}
	atomic.StoreUint32(&globalManagerInitialized, 0)

	logger.Infow("全局池管理器已关闭", "timeout", timeout)
	return err
}

// ResetGlobal 重置全局池管理器（仅用于测试）
func ResetGlobal() {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if globalManager != nil {
		globalManager.ReleaseAll()
		globalManager = nil
	}
	atomic.StoreUint32(&globalManagerInitialized, 0)
}

// Submit 提交任务到默认池
func Submit(task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		return ErrManagerNotInitialized
	}
	return mgr.SubmitToDefault(task)
}

// SubmitToType 提交任务到指定类型的池
// 池不可用时降级为裸 goroutine，保证任务总能执行
func SubmitToType(poolType Type, task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		go task()
		return nil
	}
	if err := mgr.Submit(string(poolType), task); err != nil {
		logger.Warnw("Pool submit failed, falling back to goroutine",
			"pool", string(poolType),
			"error", err,
		)
		go task()
	}
	return nil
}

// SubmitWithContext 提交带上下文的任务到默认池
func SubmitWithContext(ctx context.Context, task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		return ErrManagerNotInitialized
	}
	return mgr.SubmitWithContext(ctx, string(DefaultPool), task)
}

// GetByType 获取指定类型的池
func GetByType(poolType Type) (*Pool, error) {
	mgr := GetGlobal()
	if mgr == nil {
		return nil, ErrManagerNotInitialized
	}
	return mgr.GetByType(poolType)
}

// StatsGlobal returns statistics for all pools.
func StatsGlobal() map[string]Info {
	mgr := GetGlobal()
	if mgr == nil {
		return nil
	}
	return mgr.Stats()
}
