package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BrowserPerfTraceKit/api/handlers"
	"BrowserPerfTraceKit/internal/cdpclient"
	"BrowserPerfTraceKit/internal/config"
	"BrowserPerfTraceKit/internal/database"
	"BrowserPerfTraceKit/internal/httpserver"
	"BrowserPerfTraceKit/internal/logger"
	"BrowserPerfTraceKit/internal/perfsession"
	"BrowserPerfTraceKit/internal/report"
	"BrowserPerfTraceKit/internal/traceparser"
	"BrowserPerfTraceKit/pkg/insights"
)

func main() {
	var (
		mode       = flag.String("mode", "agent", "运行模式: agent, record")
		configPath = flag.String("config", "", "配置文件路径（缺省按约定位置查找）")
		endpoint   = flag.String("endpoint", "", "DevTools端点地址（覆盖配置）")
		listenAddr = flag.String("addr", "", "控制面监听地址（覆盖配置）")
		targetWait = flag.Duration("wait", 10*time.Second, "record模式下的录制时长")
	)
	flag.Parse()

	logger.InitLogger()

	cfg, err := loadConfig(*configPath, *endpoint, *listenAddr)
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}

	switch *mode {
	case "agent":
		runAgent(cfg)
	case "record":
		runRecordOnce(cfg, *targetWait)
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig(path, endpoint, listenAddr string) (*config.AgentConfig, error) {
	opts := []config.ConfigManagerOption{config.WithWatchEnabled(true)}
	if path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cm := config.NewConfigManager(opts...)

	cfg, err := cm.LoadAgentConfig()
	if err != nil {
		return nil, err
	}
	if endpoint != "" {
		cfg.CDP.Endpoint = endpoint
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	return cfg, nil
}

// buildController 按配置组装会话控制器及其依赖
func buildController(ctx context.Context, cfg *config.AgentConfig) (*perfsession.Controller, *cdpclient.Client, *database.TraceArchive, error) {
	clientConfig := cdpclient.DefaultClientConfig(cfg.CDP.Endpoint)
	clientConfig.HandshakeTimeout = cfg.CDP.HandshakeTimeout
	clientConfig.CallTimeout = cfg.CDP.CallTimeout
	clientConfig.RetryInitialInterval = cfg.CDP.Retry.InitialInterval
	clientConfig.RetryMaxInterval = cfg.CDP.Retry.MaxInterval
	clientConfig.RetryMaxElapsedTime = cfg.CDP.Retry.MaxElapsedTime
	client := cdpclient.New(clientConfig)

	driverConfig := cdpclient.DefaultDriverConfig()
	driverConfig.QuiescenceTimeout = cfg.Tracing.QuiescenceTimeout
	driverConfig.LoadTimeout = cfg.Tracing.LoadTimeout
	driver := cdpclient.NewDriver(client, driverConfig)

	if err := client.Connect(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := driver.Prepare(ctx); err != nil {
		client.Close()
		return nil, nil, nil, err
	}

	opts := []perfsession.ControllerOption{
		perfsession.WithCategories(cfg.Tracing.Categories),
		perfsession.WithAutoStopDelay(cfg.Tracing.AutoStopDelay),
		perfsession.WithBlankURL(cfg.Tracing.BlankURL),
	}

	var (
		archive *database.TraceArchive
		err     error
	)
	if cfg.Archive.Enabled {
		archive, err = database.Connect(ctx, &cfg.Archive)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		opts = append(opts, perfsession.WithArchiver(archive))
	}

	controller := perfsession.NewController(
		driver,
		traceparser.NewParser(),
		insights.NewDeriver(),
		report.NewDispatcher(),
		opts...,
	)
	return controller, client, archive, nil
}

// runAgent 常驻模式：连接浏览器并暴露HTTP控制面
func runAgent(cfg *config.AgentConfig) {
	fmt.Printf("🚀 跟踪代理启动 (类别列表版本 %s)\n", config.TraceCategoryListVersion)

	ctx := context.Background()
	controller, client, archive, err := buildController(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ 初始化失败: %v", err)
	}
	defer client.Close()
	if archive != nil {
		defer archive.Close()
	}

	logStream := logger.NewLogStream()
	go logStream.Run()

	traceHandlers := handlers.NewTraceHandlers(controller, archive, logStream)
	server := httpserver.NewAPIServer(&cfg.Server, traceHandlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("✅ 控制面就绪: http://%s/api/v1\n", cfg.Server.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\n🔄 收到信号 %v，正在关闭...\n", sig)
	case err := <-errCh:
		log.Printf("❌ HTTP服务器异常退出: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 录制中则先停下，保证最后一次录制完整落入历史/归档
	if controller.State() == perfsession.StateRecording {
		if resp := controller.Stop(shutdownCtx); !resp.Empty() {
			log.Printf("关闭前停止录制:\n%s", resp.Text())
		}
	}

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("服务器关闭错误: %v", err)
	}
	fmt.Println("✅ 跟踪代理已关闭")
}

// runRecordOnce 一次性模式：录制当前页面指定时长并打印摘要
func runRecordOnce(cfg *config.AgentConfig, wait time.Duration) {
	fmt.Printf("🎬 一次性录制模式，时长 %v\n", wait)

	ctx, cancel := context.WithTimeout(context.Background(), wait+2*time.Minute)
	defer cancel()

	controller, client, archive, err := buildController(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ 初始化失败: %v", err)
	}
	defer client.Close()
	if archive != nil {
		defer archive.Close()
	}

	if resp := controller.Start(ctx, false, false); !resp.Empty() {
		fmt.Println(resp.Text())
	}

	time.Sleep(wait)

	resp := controller.Stop(ctx)
	fmt.Println(resp.Text())
}
