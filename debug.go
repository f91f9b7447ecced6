//go:build debug

package sing

import (
	"net/http"
	_ "net/http/pprof"
	"os"
)

func init() {
	address := os.Getenv("SING_REACTOR_PPROF")
	if address == "" {
		address = "127.0.0.1:8964"
	}
	go http.ListenAndServe(address, nil)
}
