package main

import (
	"embed"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

//go:embed web/*
var pages embed.FS

func servePageFile(cfg *Config, name, contentType string, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := pages.ReadFile("web/" + name)
		if err != nil {
			errs <- err

			return
		}

		w.Header().Set("Content-Type", contentType)
		securityHeaders(cfg, w)

		if _, err := w.Write(data); err != nil {
			errs <- err

			return
		}
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

// serveJoinQR renders a QR code for the join URL, so the host can put it
// on a shared screen and let everyone scan their way in.
func serveJoinQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/join/qr") + "/"

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

func registerPages(cfg *Config, mux *httprouter.Router, errs chan<- error) {
	const htmlType = "text/html; charset=utf-8"

	mux.GET(cfg.prefix+"/", servePageFile(cfg, "join.html", htmlType, errs))
	mux.GET(cfg.prefix+"/waiting", servePageFile(cfg, "waiting.html", htmlType, errs))
	mux.GET(cfg.prefix+"/game", servePageFile(cfg, "game.html", htmlType, errs))
	mux.GET(cfg.prefix+"/dashboard", servePageFile(cfg, "dashboard.html", htmlType, errs))

	mux.GET(cfg.prefix+"/assets/app.css", servePageFile(cfg, "app.css", "text/css; charset=utf-8", errs))
	mux.GET(cfg.prefix+"/assets/app.js", servePageFile(cfg, "app.js", "text/javascript; charset=utf-8", errs))

	mux.GET(cfg.prefix+"/join/qr", serveJoinQR(cfg))
}
