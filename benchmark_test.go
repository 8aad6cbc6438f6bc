package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corazawaf/coraza/v3"
	"github.com/montanaflynn/stats"
)

// Script payloads
var (
	smallScript  = "#!/bin/bash\necho ok\n"
	mediumScript = strings.Repeat("echo \"step\"\n", 1024)  // ~12KB
	largeScript  = strings.Repeat("echo \"step\"\n", 10240) // ~120KB
)

// setupSite creates a site server with or without WAF
func setupSite(b *testing.B, script string, enableWAF bool) *httptest.Server {
	b.Helper()

	config := defaultConfig()
	config.Script.Path = filepath.Join(b.TempDir(), "install.sh")
	if err := os.WriteFile(config.Script.Path, []byte(script), 0755); err != nil {
		b.Fatalf("Failed to write script: %v", err)
	}

	var waf coraza.WAF
	if enableWAF {
		var err error
		// Minimal WAF config for benchmarking
		waf, err = coraza.NewWAF(coraza.NewWAFConfig().
			WithDirectives(`
				SecRuleEngine On
				SecRule REQUEST_URI "@rx .*" "id:1000,phase:1,pass"
			`))
		if err != nil {
			b.Fatalf("Failed to initialize WAF: %v", err)
		}
	}

	return httptest.NewServer(newRouter(config, newWAFHolder(waf), newLogger(io.Discard, false)))
}

// benchmarkRequests issues b.N requests and reports latency percentiles
func benchmarkRequests(b *testing.B, url string) {
	latencies := make([]float64, 0, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := time.Now()
		resp, err := http.Get(url)
		if err != nil {
			b.Fatalf("Request failed: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		latencies = append(latencies, float64(time.Since(start).Microseconds()))
	}
	b.StopTimer()

	for _, p := range []struct {
		percent float64
		unit    string
	}{{50, "p50-µs"}, {99, "p99-µs"}} {
		v, err := stats.Percentile(latencies, p.percent)
		if err != nil {
			continue
		}
		b.ReportMetric(v, p.unit)
	}
}

func BenchmarkPage(b *testing.B) {
	site := setupSite(b, smallScript, false)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/")
}

func BenchmarkPageWithWAF(b *testing.B) {
	site := setupSite(b, smallScript, true)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/")
}

func BenchmarkSmallScript(b *testing.B) {
	site := setupSite(b, smallScript, false)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/install.sh")
}

func BenchmarkMediumScript(b *testing.B) {
	site := setupSite(b, mediumScript, false)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/install.sh")
}

func BenchmarkLargeScript(b *testing.B) {
	site := setupSite(b, largeScript, false)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/install.sh")
}

func BenchmarkLargeScriptWithWAF(b *testing.B) {
	site := setupSite(b, largeScript, true)
	defer site.Close()
	benchmarkRequests(b, site.URL+"/install.sh")
}
