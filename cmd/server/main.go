package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lanchat/config"
	"lanchat/internal/handler"
	"lanchat/internal/repository"
	"lanchat/internal/server"
	"lanchat/internal/service"
	dbPkg "lanchat/pkg/db"
	"lanchat/pkg/jwt"
	"lanchat/pkg/logger"
	"lanchat/pkg/mq"
	"lanchat/pkg/redis"
	"lanchat/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		// 日志尚未初始化
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志系统
	log, err := logger.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log.Info("=== 局域网聊天服务器启动 ===")
	log.Info("服务器配置信息",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Duration("idle_timeout", cfg.Server.IdleTimeout),
		zap.Bool("require_login", cfg.Server.RequireLogin),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("http", cfg.HTTP.Enabled),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	db, err := dbPkg.Open(cfg.Database)
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.Close(db); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	store := repository.NewStore(db)

	// 3.1 上次运行残留的在线状态全部清零
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()
	if n, err := store.ResetStatuses(startCtx); err != nil {
		log.Fatal("重置在线状态失败", zap.Error(err))
	} else if n > 0 {
		log.Info("已重置残留在线状态", zap.Int64("users", n))
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithRequireLogin(cfg.Server.RequireLogin),
	}
	checks := map[string]handler.Check{"database": store.Ping}
	var notifiers service.MultiNotifier

	// 4. 可选：Redis 在线状态与离线推送队列
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(startCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Redis连接失败", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("关闭Redis连接失败", zap.Error(err))
			}
		}()
		opts = append(opts, service.WithPresence(rdb))
		checks["redis"] = rdb.HealthCheck
		log.Info("Redis连接成功")
	}

	// 5. 可选：WebSocket 推送通道
	var push *handler.PushChannel
	if cfg.WebSocket.Enabled {
		jwtSvc := jwt.NewJWTService(cfg.JWT)
		var offline websocket.OfflineStore
		if rdb != nil {
			offline = rdb
		}
		manager := websocket.NewManager(offline, log.Named("push"))
		defer manager.CloseAll()

		push = &handler.PushChannel{Manager: manager, Tokens: jwtSvc, Config: cfg.WebSocket}
		notifiers = append(notifiers, manager)
		opts = append(opts, service.WithTokenIssuer(jwtSvc))
	}

	// 6. 可选：Kafka 消息事件
	if cfg.Kafka.Enabled {
		publisher := mq.NewPublisher(cfg.Kafka, log.Named("kafka"))
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error("关闭Kafka生产者失败", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
	}
	if len(notifiers) > 0 {
		opts = append(opts, service.WithNotifier(notifiers))
	}

	// 7. 聊天协议服务器
	dispatcher := service.NewDispatcher(store, opts...)
	chatServer := server.New(cfg.Server, dispatcher, log.Named("chat"))

	serveErr := make(chan error, 2)
	go func() {
		if err := chatServer.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 8. 可选：管理接口
	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		gin.SetMode(cfg.HTTP.Mode)
		var presence handler.PresenceSource
		if rdb != nil {
			presence = rdb
		}
		admin := handler.NewAdminHandler(chatServer, presence, store, checks, log.Named("admin"))
		httpServer = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      handler.NewRouter(cfg.HTTP, admin, push),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info("HTTP服务器启动", zap.String("addr", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("收到退出信号", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("服务器异常退出", zap.Error(err))
	}

	log.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := chatServer.Shutdown(ctx); err != nil {
		log.Error("聊天服务器关闭失败", zap.Error(err))
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("HTTP服务器关闭失败", zap.Error(err))
		}
	}

	log.Info("服务器已安全关闭")
}
