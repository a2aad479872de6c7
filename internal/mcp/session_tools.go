package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridrank/internal/anchor"
	"github.com/dshills/hybridrank/internal/session"
)

// handleCreateSession handles the create_session tool invocation
func (s *Server) handleCreateSession(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if pruned := s.PruneSessions(); pruned > 0 {
		s.logger.Debug().Int("pruned", pruned).Msg("idle sessions removed")
	}

	sess := s.sessions.Create()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})), nil
}

// handleMarkAnchor handles the mark_anchor tool invocation
func (s *Server) handleMarkAnchor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, sess, err := s.sessionArgs(request)
	if err != nil {
		return nil, err
	}

	nodeID := getInt64Ptr(args, "node_id")
	if nodeID == nil {
		return nil, invalidParam("node_id", "missing")
	}
	name := getStringDefault(args, "name", "")

	var a anchor.Anchor
	switch polarity := getStringDefault(args, "polarity", ""); anchor.Polarity(polarity) {
	case anchor.Positive:
		a, err = sess.MarkPositive(ctx, *nodeID, name)
	case anchor.Negative:
		a, err = sess.MarkNegative(ctx, *nodeID, name)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid polarity", map[string]interface{}{
			"param":   "polarity",
			"value":   polarity,
			"allowed": []string{string(anchor.Positive), string(anchor.Negative)},
		})
	}
	if err != nil {
		return nil, toMCPError("failed to mark anchor", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"anchor_id": a.ID,
		"name":      a.Name,
		"node_id":   *nodeID,
		"anchors":   formatAnchors(sess.Anchors()),
	})), nil
}

// handleRemoveAnchor handles the remove_anchor tool invocation
func (s *Server) handleRemoveAnchor(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, sess, err := s.sessionArgs(request)
	if err != nil {
		return nil, err
	}

	anchorID := getStringDefault(args, "anchor_id", "")
	if anchorID == "" {
		return nil, invalidParam("anchor_id", "missing or empty")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": sess.RemoveAnchor(anchorID),
		"anchors": formatAnchors(sess.Anchors()),
	})), nil
}

// handleHarvest handles the harvest_results tool invocation
func (s *Server) handleHarvest(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, sess, err := s.sessionArgs(request)
	if err != nil {
		return nil, err
	}

	nodeIDs, err := getInt64Slice(args, "node_ids")
	if err != nil {
		return nil, invalidParam("node_ids", err.Error())
	}

	added, err := sess.Harvest(nodeIDs...)
	if err != nil {
		return nil, toMCPError("failed to harvest results", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"added":     added,
		"harvested": len(sess.Harvested()),
	})), nil
}

// handleGetSession handles the get_session tool invocation
func (s *Server) handleGetSession(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.sessionArgs(request)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"anchors":    formatAnchors(sess.Anchors()),
		"harvested":  formatResults(sess.Harvested()),
	})), nil
}

// sessionArgs extracts the arguments and resolves session_id
func (s *Server) sessionArgs(request mcp.CallToolRequest) (map[string]interface{}, *session.Session, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := getStringDefault(args, "session_id", "")
	if id == "" {
		return nil, nil, invalidParam("session_id", "missing or empty")
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, nil, toMCPError("session lookup failed", err)
	}
	return args, sess, nil
}

func formatAnchors(set anchor.Set) map[string]interface{} {
	render := func(anchors []anchor.Anchor) []map[string]interface{} {
		out := make([]map[string]interface{}, len(anchors))
		for i, a := range anchors {
			out[i] = map[string]interface{}{
				"id":        a.ID,
				"name":      a.Name,
				"dimension": len(a.Embedding),
			}
		}
		return out
	}
	return map[string]interface{}{
		"positive": render(set.Positive),
		"negative": render(set.Negative),
	}
}
