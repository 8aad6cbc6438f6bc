package main

import (
	_ "embed"
	"net/http"
)

// pageDocument is the landing page. Its tab switching and copy buttons run
// entirely in the browser.
//
//go:embed index.html
var pageDocument []byte

func servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write(pageDocument)
}
