// Package server assembles the route table and the middleware chain.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jsb0315/image-server/internal/api"
	"github.com/jsb0315/image-server/internal/config"
	"github.com/jsb0315/image-server/internal/logging"
	"github.com/jsb0315/image-server/internal/web"
)

// New builds the full handler: web surface, API surface, static file
// serving, and the middleware stack around them.
func New(cfg config.Config, webH *web.Handlers, apiH *api.Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Browser surface. Session gate on everything except the login flow.
	mux.HandleFunc("GET /login", webH.HandleLoginPage)
	mux.HandleFunc("POST /auth", webH.HandleAuth)
	mux.HandleFunc("GET /logout", webH.HandleLogout)
	mux.HandleFunc("GET /{$}", webH.RequireSession(webH.HandleIndex))
	mux.HandleFunc("POST /upload", webH.RequireSession(webH.HandleUpload))
	mux.HandleFunc("POST /create-folder", webH.RequireSession(webH.HandleCreateFolder))
	mux.HandleFunc("GET /folders", webH.RequireSession(webH.HandleFolders))
	mux.HandleFunc("GET /images-list", webH.RequireSession(webH.HandleImagesList))
	mux.HandleFunc("GET /images-list/{folder}", webH.RequireSession(webH.HandleFolderImagesList))
	mux.HandleFunc("DELETE /images/{filename}", webH.RequireSession(webH.HandleDelete))
	mux.HandleFunc("DELETE /images/{folder}/{filename}", webH.RequireSession(webH.HandleFolderDelete))
	mux.HandleFunc("PUT /images/{filename}/rename", webH.RequireSession(webH.HandleRename))
	mux.HandleFunc("PUT /images/{folder}/{filename}/rename", webH.RequireSession(webH.HandleFolderRename))
	mux.HandleFunc("GET /thumb", webH.RequireSession(webH.HandleThumb))

	// Raw files are public so copied URLs work anywhere. Directory requests
	// 404 instead of listing, so the static route never enumerates the tree.
	files := http.StripPrefix("/images/", filesOnly(cfg.UploadDir, http.FileServer(http.Dir(cfg.UploadDir))))
	mux.Handle("GET /images/", files)

	// Programmatic surface. Docs are open; everything else needs the key.
	mux.HandleFunc("GET /api", apiH.HandleDocs)
	mux.HandleFunc("GET /api/status", apiH.RequireAPIKey(apiH.HandleStatus))
	mux.HandleFunc("POST /api/upload", apiH.RequireAPIKey(apiH.HandleUpload))
	mux.HandleFunc("POST /api/upload-single", apiH.RequireAPIKey(apiH.HandleUploadSingle))
	mux.HandleFunc("GET /api/images", apiH.RequireAPIKey(apiH.HandleImages))
	mux.HandleFunc("DELETE /api/images/{folder}/{filename}", apiH.RequireAPIKey(apiH.HandleDelete))

	mux.HandleFunc("GET /healthz", handleHealthz)

	var handler http.Handler = mux
	if cfg.EnableCORS {
		handler = corsMiddleware(cfg.CORSOrigins, handler)
	}
	handler = recoverMiddleware(logger, handler)
	return logging.RequestLogger(logger, handler)
}

// filesOnly serves only regular files from root, returning 404 for
// directories so the file server's auto-index never runs.
func filesOnly(root string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// corsMiddleware answers preflights and stamps the configured origins on
// every response.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := strings.Join(origins, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts handler panics into a JSON 500 so one bad
// request cannot take the process down. The message is passed through; this
// is an internal tool and the raw text aids debugging.
func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprint(rec)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
