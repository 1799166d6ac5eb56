package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/httpapi"
	"github.com/subgeo/subgeo/internal/pipeline"
	"github.com/subgeo/subgeo/internal/probe"
	"github.com/subgeo/subgeo/internal/provision"
	"github.com/subgeo/subgeo/internal/supervisor"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:25600", "HTTP 监听地址")
	coresDir := flag.String("cores-dir", "./cores", "代理核心二进制所在目录")
	configDir := flag.String("config-dir", "", "临时节点配置目录（默认系统临时目录）")
	concurrency := flag.Int64("concurrency", pipeline.DefaultConcurrency, "同时测试的节点数量上限")
	geoURL := flag.String("geo-url", probe.DefaultGeoURL, "地理位置查询地址")
	geoTimeout := flag.Duration("geo-timeout", 15*time.Second, "单节点地理位置查询超时")
	settle := flag.Duration("settle", 3*time.Second, "核心启动后的稳定等待时间")
	stopGrace := flag.Duration("stop-grace", 5*time.Second, "核心退出信号后的强杀等待时间")
	processTimeout := flag.Duration("process-timeout", 5*time.Minute, "单次批处理的总超时（包含拉取与全部测试）")
	readHeaderTimeout := flag.Duration("read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	logLevel := flag.String("log-level", "info", "日志级别（debug/info/warn/error）")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	provider := &provision.Dir{Root: *coresDir, Log: log}
	prober := &probe.Prober{
		Runner: probe.SupervisorRunner{S: &supervisor.Supervisor{
			Log:       log,
			Settle:    *settle,
			StopGrace: *stopGrace,
		}},
		Provider:   provider,
		Log:        log,
		GeoURL:     *geoURL,
		GeoTimeout: *geoTimeout,
		ConfigDir:  *configDir,
	}
	pl := &pipeline.Pipeline{
		Prober:      prober,
		Provider:    provider,
		Log:         log,
		Concurrency: *concurrency,
	}

	srv := &http.Server{
		Addr: *listen,
		Handler: httpapi.NewHandler(httpapi.Options{
			Pipeline:       pl,
			Provider:       provider,
			ProcessTimeout: *processTimeout,
			Log:            log,
		}),
		ReadHeaderTimeout: *readHeaderTimeout,
	}

	log.WithField("addr", *listen).Info("listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}
}
