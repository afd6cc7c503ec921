// Command carnavgui is the head unit window. It starts (or attaches to) the
// carnav server, shows its output until /health answers, then shows the map
// and keeps the server told about the map area's size.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	webview "github.com/webview/webview_go"

	"carnav/pkg/config"
)

var configPath = flag.String("config", "configs/carnav.yaml", "Path to the config file")

// page forwards calls into the shell page. Eval must run on the UI thread.
type page struct {
	w webview.WebView
}

func (p page) call(fn, arg string) {
	p.w.Dispatch(func() {
		p.w.Eval(fmt.Sprintf("window.%s(%s)", fn, escapeJS(arg)))
	})
}

func (p page) addLogLine(s string)       { p.call("addLogLine", s) }
func (p page) setTerminalTitle(s string) { p.call("setTerminalTitle", s) }
func (p page) enableApp(url string)      { p.call("enableApp", url) }

func main() {
	flag.Parse()
	runtime.LockOSThread()

	dir, err := exeDir()
	if err != nil {
		fatal("Failed to change directory", err)
	}
	cfg := shellConfig(*configPath)

	w := webview.New(false)
	defer w.Destroy()
	w.SetTitle(cfg.Window.Title)
	w.SetSize(cfg.Window.Width, cfg.Window.Height, webview.HintNone)

	p := page{w: w}
	mgr := NewManager(p.addLogLine, p.setTerminalTitle, p.enableApp, cfg.Server.Address)
	mgr.serverBin = filepath.Join(dir, serverBinary())
	mgr.configPath = *configPath
	mgr.logPath = cfg.Log.Server.Path
	defer mgr.Stop()

	// The page reports the map frame size; the focus pass needs it to pick a zoom.
	if err := w.Bind("reportSize", func(width, height int) {
		go func() {
			if err := mgr.ReportDimensions(width, height); err != nil {
				p.addLogLine(fmt.Sprintf("> Size report failed: %v", err))
			}
		}()
	}); err != nil {
		fatal("Failed to bind reportSize", err)
	}

	addr, err := serveShell()
	if err != nil {
		fatal("Failed to listen", err)
	}
	w.Navigate("http://" + addr)

	mgr.Start()
	w.Run()
}

// exeDir switches to the executable's directory so configs/ and the server
// binary resolve next to it.
func exeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(exe)
	return dir, os.Chdir(dir)
}

// shellConfig reads only what the window needs. A missing or broken file is
// left for the server to report.
func shellConfig(path string) *config.Config {
	if _, err := os.Stat(path); err == nil {
		if cfg, err := config.Load(path); err == nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

func serveShell() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(htmlContent))
		}))
	}()
	return ln.Addr().String(), nil
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func serverBinary() string {
	if runtime.GOOS == "windows" {
		return "carnav.exe"
	}
	return "carnav"
}

// escapeJS quotes s as a JS string literal.
func escapeJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
