// Package observe file: internal/observe/debug.go
package observe

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

// pprofMux 只挂 /debug/pprof 下的端点，不使用 http.DefaultServeMux
func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// EnablePprof 在 addr (如 "localhost:6060") 上单独起一个 pprof 服务。
// addr 为空时不启动并返回 nil；调用方负责在停机时关闭返回的 server。
func EnablePprof(addr string) *http.Server {
	if addr == "" {
		slog.Info("pprof 未配置监听地址，跳过。")
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           pprofMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("pprof 端点已启动", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("pprof 端点启动失败", "address", addr, "error", err)
		}
	}()
	return srv
}
