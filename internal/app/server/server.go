// Package server 组装并运行 relaybus 服务器：日志、总线、引擎与 HTTP 服务
package server

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"relaybus-core/internal/broker"
	"relaybus-core/internal/config/schema"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/core/metrics"
	"relaybus-core/internal/pubsub"
)

// Server 服务器结构
type Server struct {
	config     *schema.Root
	deps       *Dependencies
	components []Component
	logger     corelog.Logger

	mu       sync.Mutex
	started  int
	stopOnce sync.Once
	stopErr  error
}

// New 使用默认组件创建服务器
func New(ctx context.Context, config *schema.Root) (*Server, error) {
	return NewServerBuilder(config).WithDefaults().Build(ctx)
}

// NodeID 节点ID
func (s *Server) NodeID() string {
	return s.deps.NodeID
}

// Bus 分发总线
func (s *Server) Bus() *pubsub.Bus {
	return s.deps.Bus
}

// Engine 默认引擎，未配置时为 nil
func (s *Server) Engine() broker.Engine {
	return s.deps.Engine
}

// Metrics 进程内指标
func (s *Server) Metrics() metrics.Metrics {
	return s.deps.Metrics
}

// Addr HTTP 实际监听地址
func (s *Server) Addr() string {
	if s.deps.HTTPService == nil {
		return ""
	}
	return s.deps.HTTPService.Addr()
}

// Start 按初始化顺序启动组件，失败时停止已启动的组件
func (s *Server) Start() error {
	s.logger.Info("Starting relaybus server...")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.components[s.started:] {
		if err := c.Start(); err != nil {
			s.logger.Errorf("Failed to start component %s: %v", c.Name(), err)
			return coreerrors.Wrapf(err, coreerrors.GetCode(err), "start component %s", c.Name())
		}
		s.started++
	}

	s.logger.Infof("Server started: node=%s addr=%s", s.NodeID(), s.Addr())
	return nil
}

// Stop 逆序停止全部组件，可重复调用
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		s.stopErr = s.stopComponents()
		s.logger.Info("Server shutdown completed")
		s.closeLog()
	})
	return s.stopErr
}

func (s *Server) stopComponents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.components) - 1; i >= 0; i-- {
		c := s.components[i]
		if err := c.Stop(); err != nil {
			s.deps.Logger.Warnf("Failed to stop component %s: %v", c.Name(), err)
			errs = append(errs, err)
		}
	}
	s.started = 0
	return coreerrors.Join(errs...)
}

func (s *Server) closeLog() {
	if s.deps.LogCloser == nil {
		return
	}
	_ = s.deps.LogCloser.Close()
	s.deps.LogCloser = nil
}

// Run 启动服务器并阻塞，直到 ctx 取消或 HTTP 服务异常退出，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		_ = s.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.deps.HTTPService != nil {
		serveErr := s.deps.HTTPService.Err()
		g.Go(func() error {
			select {
			case err, ok := <-serveErr:
				if ok && err != nil {
					return err
				}
				return coreerrors.New(coreerrors.CodeServiceClosed, "http service exited")
			case <-gctx.Done():
				return nil
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Received shutdown signal")
		return nil
	})

	runErr := g.Wait()
	stopErr := s.Stop()
	if runErr != nil {
		return runErr
	}
	return stopErr
}
