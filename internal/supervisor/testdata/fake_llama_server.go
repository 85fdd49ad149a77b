package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var alias string
	var model string
	var host string
	var port string
	var apiKey string
	var startupDelayMS int
	var healthDelayMS int
	var neverReady bool
	// Accept the subset of llama-server flags the supervisor passes
	flag.StringVar(&alias, "alias", "", "model alias")
	flag.StringVar(&model, "model", "", "model path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.StringVar(&apiKey, "api-key", "", "api key")
	flag.IntVar(&startupDelayMS, "startup-delay-ms", 0, "delay before /health succeeds")
	flag.IntVar(&healthDelayMS, "health-delay-ms", 0, "delay before each /health response")
	flag.BoolVar(&neverReady, "never-ready", false, "always fail /health")
	flag.Parse()

	started := time.Now()
	addr := fmt.Sprintf("%s:%s", host, port)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthDelayMS > 0 {
			time.Sleep(time.Duration(healthDelayMS) * time.Millisecond)
		}
		if neverReady || time.Since(started) < time.Duration(startupDelayMS)*time.Millisecond {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			f := w.(http.Flusher)
			for _, frag := range []string{"Hello", " world"} {
				fmt.Fprintf(w, "data: {\"object\":\"chat.completion.chunk\",\"model\":%q,\"created\":1700000000,\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", alias, frag)
				f.Flush()
			}
			fmt.Fprintf(w, "data: {\"object\":\"chat.completion.chunk\",\"model\":%q,\"created\":1700000000,\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n", alias)
			f.Flush()
			fmt.Fprint(w, "data: [DONE]\n\n")
			f.Flush()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cc-1","object":"chat.completion","model":%q,"created":1700000000,"choices":[{"index":0,"message":{"role":"assistant","content":"Hello world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, alias)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
	})
	mux.HandleFunc("/v1/tokenize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[1,2,3]}`))
	})
	mux.HandleFunc("/v1/detokenize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":"hello"}`))
	})

	log.Printf("fake llama-server alias=%s model=%s listening on %s", alias, model, addr)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for SIGTERM then shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
