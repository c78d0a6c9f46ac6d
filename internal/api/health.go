package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var errNoCheck = errors.New("no health check configured")

// CheckFunc pings one dependency.
type CheckFunc func(ctx context.Context) error

type HealthHandler struct {
	postgres CheckFunc
	redis    CheckFunc
	env      string
	version  string
}

// NewHealthHandler builds the probes. A nil redis check reports the cache
// as disabled; postgres is mandatory for readiness.
func NewHealthHandler(postgres, redis CheckFunc, env, version string) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	if check(ctx, h.postgres) != nil {
		deps["postgres"] = "down"
		status = "error"
	} else {
		deps["postgres"] = "ok"
	}

	// redis only backs the lock and the snapshot cache, so losing it degrades
	switch {
	case h.redis == nil:
		deps["redis"] = "disabled"
	case check(ctx, h.redis) != nil:
		deps["redis"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	default:
		deps["redis"] = "ok"
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}

func check(ctx context.Context, fn CheckFunc) error {
	if fn == nil {
		return errNoCheck
	}
	checkCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return fn(checkCtx)
}
