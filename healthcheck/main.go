// Command healthcheck probes a running site for container health checks. It
// exits 0 when the landing page answers 200 and 1 otherwise.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultPort = "31234"

func main() {
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	port := flag.String("port", "", "site port (default $PORT, then "+defaultPort+")")
	url := flag.String("url", "", "full URL to probe; overrides -port")
	flag.Parse()

	if err := probe(&http.Client{Timeout: *timeout}, targetURL(*url, *port, os.Getenv)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// targetURL picks the probe URL: an explicit URL, then the -port flag, then
// PORT, then the site's default port.
func targetURL(url, port string, getenv func(string) string) string {
	if url != "" {
		return url
	}
	if port == "" {
		port = getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}
	return "http://localhost:" + port + "/"
}

func probe(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
