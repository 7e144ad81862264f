package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/metrics"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// errorBody is the JSON error returned by the gateway.
type errorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Gateway serves the node service as JSON over HTTP/1.1 for browsers:
// POST /lnbridge.node.v1.Node/{method} with a JSON object body. The
// SubscribeEvents method answers with newline-delimited JSON.
func Gateway(s *Service, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Post("/"+ServiceName+"/"+MethodSubscribeEvents, func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, s)
	})
	r.Post("/"+ServiceName+"/{method}", func(w http.ResponseWriter, r *http.Request) {
		method := chi.URLParam(r, "method")
		start := time.Now()

		err := serveUnary(w, r, s, method)
		code := status.Code(err).String()
		label := method
		if _, ok := unaryMethods[method]; !ok {
			label = "unknown"
		}
		metrics.APIRequests.WithLabelValues(label, code).Inc()
		if err != nil {
			writeError(w, err)
		}
		s.log.Debug("Gateway call", "method", method, "code", code,
			"request_id", middleware.GetReqID(r.Context()), "took", time.Since(start))
	})
	return r
}

func readRequest(r *http.Request) (*structpb.Struct, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	req := &structpb.Struct{}
	if len(body) == 0 {
		return req, nil
	}
	if err := protojson.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", domain.ErrInvalidArgument, err)
	}
	return req, nil
}

// serveUnary writes the response on success and returns a status error otherwise.
func serveUnary(w http.ResponseWriter, r *http.Request, srv NodeServer, method string) error {
	call, ok := unaryMethods[method]
	if !ok {
		return toStatus(fmt.Errorf("%w: %s", errUnknownMethod, method))
	}
	req, err := readRequest(r)
	if err != nil {
		return toStatus(err)
	}
	resp, err := call(srv, r.Context(), req)
	if err != nil {
		return toStatus(err)
	}
	body, err := protojson.Marshal(resp)
	if err != nil {
		return toStatus(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}

func streamEvents(w http.ResponseWriter, r *http.Request, s *Service) {
	req, err := readRequest(r)
	if err != nil {
		writeError(w, toStatus(err))
		return
	}
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	err = s.subscribe(r.Context(), req, func(ev domain.Event) error {
		raw, err := domain.MarshalEvent(ev)
		if err != nil {
			return err
		}
		if err := enc.Encode(json.RawMessage(raw)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	code := status.Code(toStatus(err)).String()
	metrics.APIRequests.WithLabelValues(MethodSubscribeEvents, code).Inc()
	if err != nil {
		// headers are gone, report the failure as the last line
		st := status.Convert(toStatus(err))
		_ = enc.Encode(errorBody{Code: st.Code().String(), Reason: ErrorReason(st.Err()), Message: st.Message()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(st.Code()))
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    st.Code().String(),
		Reason:  ErrorReason(err),
		Message: st.Message(),
	})
}
