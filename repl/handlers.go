package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/protocol"
	"github.com/lessisbetter/json-joy-rs-sub002/store"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

func AddCorsHeaders(f func(w http.ResponseWriter, req *http.Request)) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "86400")
		f(w, req)
	}
}

// NewServer exposes the store: GET /docs, GET /view?doc=, GET
// /model?doc= (hex), POST /patch?doc= with a hex patch body.
func NewServer(addr string, st *store.Store, log utils.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs", AddCorsHeaders(DocsHandler(st)))
	mux.HandleFunc("/view", AddCorsHeaders(ViewHandler(st)))
	mux.HandleFunc("/model", AddCorsHeaders(ModelHandler(st)))
	mux.HandleFunc("/patch", AddCorsHeaders(PatchHandler(st, log)))
	return &http.Server{Addr: addr, Handler: mux}
}

func status(err error) int {
	switch {
	case errors.Is(err, joy_errors.ErrDocumentUnknown):
		return http.StatusNotFound
	case errors.Is(err, joy_errors.ErrInvalidHex), errors.Is(err, joy_errors.ErrInvalidPatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, joy_errors.ErrApplyFailure):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func DocsHandler(st *store.Store) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "GET")
			w.WriteHeader(http.StatusNoContent)
		case "GET":
			docs, err := st.Docs()
			if err != nil {
				http.Error(w, err.Error(), status(err))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(strings.Join(docs, "\n")))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func ViewHandler(st *store.Store) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "GET")
			w.WriteHeader(http.StatusNoContent)
		case "GET":
			m, err := st.Load(req.Context(), req.URL.Query().Get("doc"))
			if err != nil {
				http.Error(w, err.Error(), status(err))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(protocol.FormatJSON(m.View())))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func ModelHandler(st *store.Store) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "GET")
			w.WriteHeader(http.StatusNoContent)
		case "GET":
			m, err := st.Load(req.Context(), req.URL.Query().Get("doc"))
			if err == nil {
				var bin []byte
				if bin, err = joy.ModelToBinary(m); err == nil {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte(joy.HexEncode(bin)))
					return
				}
			}
			http.Error(w, err.Error(), status(err))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func PatchHandler(st *store.Store, log utils.Logger) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "POST")
			w.WriteHeader(http.StatusNoContent)
		case "POST":
			body, err := io.ReadAll(io.LimitReader(req.Body, 2*patch.MaxPatchSize+1))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			bin, err := joy.HexDecode(string(body))
			if err != nil {
				http.Error(w, err.Error(), status(err))
				return
			}
			p, err := patch.Decode(bin)
			if err != nil {
				http.Error(w, err.Error(), status(err))
				return
			}
			doc := req.URL.Query().Get("doc")
			ctx := utils.WithSession(req.Context(), p.ID.Sid)
			if err := st.Commit(ctx, doc, p); err != nil {
				log.WarnCtx(ctx, "remote patch rejected", "doc", doc, "err", err)
				http.Error(w, err.Error(), status(err))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(p.ID.String()))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}
