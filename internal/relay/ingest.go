package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	geodomain "visitor-relay/internal/geo/domain"
	iddomain "visitor-relay/internal/identity/domain"
	"visitor-relay/internal/relay/domain"
)

// IngestAck is the body returned for a client-submitted payload.
type IngestAck struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ClientIP  string `json:"clientIP"`
}

// ingestBody is the lenient view of {UserId, ipInfo}. Fields of the wrong type read as absent.
type ingestBody struct {
	UserID string
	IPInfo map[string]any
}

func parseIngest(raw []byte) ingestBody {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ingestBody{}
	}
	var b ingestBody
	b.UserID, _ = m["UserId"].(string)
	b.IPInfo, _ = m["ipInfo"].(map[string]any)
	return b
}

// ingest logs the submitted user data and acknowledges it. Never fails.
func (h *Handler) ingest(ctx context.Context, logger *slog.Logger, id iddomain.ClientIdentity, raw []byte) domain.Outcome {
	body := parseIngest(raw)
	reported, location := "N/A", geodomain.Unknown
	if body.IPInfo != nil {
		reported = stringField(body.IPInfo, "ip", geodomain.Unknown)
		location = stringField(body.IPInfo, "city", geodomain.Unknown) + ", " +
			stringField(body.IPInfo, "country_name", geodomain.Unknown)
	}
	logger.InfoContext(ctx, "user data received",
		"user_id", body.UserID,
		"ip", id.IP,
		"reported_ip", reported,
		"location", location)

	return domain.JSONAck(IngestAck{
		Success:   true,
		Message:   "Data received successfully",
		Timestamp: h.timestamp(),
		ClientIP:  id.IP,
	})
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
