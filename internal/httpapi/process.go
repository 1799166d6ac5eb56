package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/render"
)

const maxRequestBody = 1 << 20

type processRequest struct {
	URLs         []string `json:"urls"`
	OutputFormat string   `json:"output_format"`
}

type processHandler struct {
	opt Options
}

// handleProcess is the batch entry point: fetch every subscription, probe
// every node, and stream back the relabeled set in the requested encoding.
func (h processHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProcessRequest(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	target, err := render.ParseTarget(req.OutputFormat)
	if err != nil {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "不支持的 output_format（仅支持 clash/singbox/v2rayn）", req.OutputFormat))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opt.ProcessTimeout)
	defer cancel()

	_, outcomes, err := h.opt.Pipeline.Run(ctx, req.URLs)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	metricsRecordBatch(outcomes)

	out, err := render.Render(target, outcomes)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteBytes(w, http.StatusOK, render.ContentType(target), out)
}

func decodeProcessRequest(r *http.Request) (processRequest, error) {
	var req processRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return req, requestError("INVALID_ARGUMENT", "请求体读取失败", err.Error())
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, requestError("INVALID_ARGUMENT", "请求体必须是合法 JSON", err.Error())
	}

	if len(req.URLs) == 0 {
		return req, requestError("INVALID_ARGUMENT", "urls 不能为空", "")
	}
	for _, raw := range req.URLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return req, requestError("INVALID_ARGUMENT", "urls 必须是 http(s) 地址", raw)
		}
	}
	return req, nil
}

// handleHealthz degrades to 503 when neither proxy core is runnable, so load
// balancers stop sending batches that could only be classified skipped.
func (h processHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.opt.Provider != nil &&
		!h.opt.Provider.Ensure(model.CoreClash) &&
		!h.opt.Provider.Ensure(model.CoreSingBox) {
		WriteError(w, http.StatusServiceUnavailable, model.AppError{
			Code:    "NO_CORE_AVAILABLE",
			Message: "没有可用的代理核心",
			Stage:   "healthz",
		})
		return
	}
	WriteText(w, http.StatusOK, "ok\n")
}
