package main

import (
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/jsb0315/image-server/internal/api"
	"github.com/jsb0315/image-server/internal/auth"
	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/logging"
	"github.com/jsb0315/image-server/internal/server"
	"github.com/jsb0315/image-server/internal/storage"
	"github.com/jsb0315/image-server/internal/upload"
	"github.com/jsb0315/image-server/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	store, err := storage.New(cfg.UploadDir, cfg.AllowedExtensions)
	if err != nil {
		logger.Error("preparing upload directory failed", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(cfg.SessionSecret, cfg.AccessPassword, cfg.APIKey, logger)
	uploads := upload.NewProcessor(cfg, store, logger)

	webH, err := web.NewHandlers(cfg, store, authSvc, uploads, logger)
	if err != nil {
		logger.Error("initializing web handlers failed", "error", err)
		os.Exit(1)
	}
	apiH := api.NewHandlers(cfg, store, authSvc, uploads, logger)

	handler := server.New(cfg, webH, apiH, logger)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	logger.Info("server starting",
		"addr", addr,
		"upload_dir", cfg.UploadDir,
		"max_file_size_mb", cfg.MaxFileSizeMB(),
		"max_files_per_upload", cfg.MaxFilesPerUpload,
		"cors", cfg.EnableCORS,
	)
	logger.Info("management UI", "url", "http://"+addr+"/")
	logger.Info("API docs", "url", "http://"+addr+"/api")

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
