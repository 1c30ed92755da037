package service

import (
	"time"

	"github.com/socialblog/auth-service/pkg/constant"
)

// RiskEvaluator decides whether a password login needs email approval.
type RiskEvaluator struct {
	window time.Duration
	now    func() time.Time
}

func NewRiskEvaluator(window time.Duration, now func() time.Time) *RiskEvaluator {
	if window <= 0 {
		window = constant.RiskWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RiskEvaluator{window: window, now: now}
}

// IsHighRisk is true for a first login, a changed IP, or a last login older
// than the window, checked in that order.
func (r *RiskEvaluator) IsHighRisk(lastIP *string, lastLoginAt *time.Time, currentIP string) bool {
	if lastLoginAt == nil {
		return true
	}
	if lastIP == nil || *lastIP != currentIP {
		return true
	}
	return r.now().Sub(*lastLoginAt) > r.window
}
