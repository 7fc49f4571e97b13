// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lifedeck/aigw"
)

// TestConnection probes the node's model-listing endpoint and records the
// outcome. This is the only path that changes a node's status: answered
// within the timeout with 2xx means online, a timeout means timeout, anything
// else means offline. A node never returns to unknown.
func (r *Registry) TestConnection(ctx context.Context, id uuid.UUID) (*aigw.ClientNode, error) {
	node, err := r.options.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.options.ProbeTimeout)
	defer cancel()

	start := time.Now()
	models, err := r.probeModels(probeCtx, node)
	elapsed := time.Since(start)

	now := time.Now()
	if err != nil {
		status := aigw.NodeStatusOffline
		if isTimeout(err) {
			status = aigw.NodeStatusTimeout
		}
		r.options.Logger.Warn("Node probe failed",
			"node", node.ID, "status", status, "error", err)

		// Capabilities from the last successful probe are kept.
		if uerr := r.options.Repo.UpdateHealth(ctx, node.ID, status, node.Capabilities, nil); uerr != nil {
			return nil, uerr
		}
		node.Status = status
		return node, nil
	}

	caps := aigw.NodeCapabilities{
		Models:             models,
		ModelCount:         len(models),
		LastResponseTimeMs: elapsed.Milliseconds(),
	}
	if err := r.options.Repo.UpdateHealth(ctx, node.ID, aigw.NodeStatusOnline, caps, &now); err != nil {
		return nil, err
	}

	node.Status = aigw.NodeStatusOnline
	node.Capabilities = caps
	node.LastSeenAt = &now

	r.options.Logger.Info("Node probe succeeded",
		"node", node.ID, "models", caps.ModelCount, "elapsed", elapsed)
	return node, nil
}

func (r *Registry) probeModels(ctx context.Context, node *aigw.ClientNode) ([]string, error) {
	var endpoint string
	switch node.NodeType {
	case aigw.NodeTypeOllama:
		endpoint = node.BaseURL() + "/api/tags"
	case aigw.NodeTypeOpenWebUI:
		endpoint = node.BaseURL() + "/api/models"
	default:
		return nil, fmt.Errorf("%w: unsupported node type %q", aigw.ErrValidation, node.NodeType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := r.options.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", aigw.ErrNodeUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: probe status %d", aigw.ErrNodeUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read probe response: %w", err)
	}

	switch node.NodeType {
	case aigw.NodeTypeOllama:
		return parseOllamaTags(body)
	default:
		return parseOpenWebUIModels(body)
	}
}

func parseOllamaTags(body []byte) ([]string, error) {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models, nil
}

func parseOpenWebUIModels(body []byte) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
