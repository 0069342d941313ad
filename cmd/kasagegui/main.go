// Command kasagegui shows the homestay app in a native webview window, for use
// on the front-desk kiosk. It starts the kasage server when none is running.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	webview "github.com/webview/webview_go"

	"kasage/pkg/config"
)

var (
	configPath = flag.String("config", "configs/kasage.yaml", "Path to the server config file")
	serverBin  = flag.String("server", "./kasage", "Server binary started when no server answers")
	debug      = flag.Bool("debug", false, "Enable webview developer tools")
)

func main() {
	flag.Parse()

	// Webview requires the main thread.
	runtime.LockOSThread()

	// Run from the executable directory so configs/ and .env are found.
	if exe, err := os.Executable(); err == nil {
		if err := os.Chdir(filepath.Dir(exe)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to change directory: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	w := webview.New(*debug)
	defer w.Destroy()

	w.SetTitle(cfg.Home.Name)
	w.SetSize(430, 900, webview.HintNone)
	w.SetHtml(splashHTML)

	status := func(msg string) {
		slog.Info(msg)
		w.Dispatch(func() {
			w.Eval("window.setStatus && window.setStatus(" + escapeJS(msg) + ")")
		})
	}
	ready := func(url string) {
		w.Dispatch(func() {
			w.Navigate(url)
		})
	}

	mgr := NewManager(cfg.Server.Address, *serverBin, status, ready)
	defer mgr.Stop()
	mgr.Start()

	w.Run()
}

func escapeJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

const splashHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<style>
  body { margin: 0; height: 100vh; display: flex; flex-direction: column; align-items: center;
         justify-content: center; font-family: system-ui, sans-serif; background: #064e3b; color: #ecfdf5; }
  #status { margin-top: 12px; font-size: 13px; opacity: .8; }
</style>
</head>
<body>
  <h2>Kasage Homestay</h2>
  <div id="status">Starting...</div>
  <script>window.setStatus = function (s) { document.getElementById("status").textContent = s; };</script>
</body>
</html>`
