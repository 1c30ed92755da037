package audit

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/socialblog/auth-service/internal/auth/domain"
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Recorder persists authentication events and echoes them to the log.
type Recorder struct {
	store  domain.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(store domain.AuditRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if entry.MaskedIP == "" {
		entry.MaskedIP = MaskIP(entry.IPAddress)
	}

	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("status", entry.Status),
		zap.String("email", entry.Email),
		zap.String("ip", entry.MaskedIP),
	}
	if entry.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *entry.UserID))
	}
	if entry.Details != "" {
		fields = append(fields, zap.String("details", entry.Details))
	}
	if entry.Status == constant.AuditStatusFailed {
		r.logger.Warn("auth event", fields...)
	} else {
		r.logger.Info("auth event", fields...)
	}

	if err := r.store.RecordAuditEntry(ctx, &entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (r *Recorder) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultQueryLimit
	}
	if filter.Limit > MaxQueryLimit {
		filter.Limit = MaxQueryLimit
	}
	return r.store.QueryAuditEntries(ctx, filter)
}

// MaskIP keeps the network half of an address: 192.168.1.100 -> 192.168.*.*.
func MaskIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "unknown"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.*.*", v4[0], v4[1])
	}

	parts := strings.Split(parsed.String(), ":")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ":") + ":*:*"
}
