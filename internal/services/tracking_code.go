package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"math/big"

	"feedbackhub/internal/config"
	contextutils "feedbackhub/internal/utils"
)

const trackingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// feedbackNoConstraint is the unique constraint on feedback.feedback_no
const feedbackNoConstraint = "feedback_feedback_no_key"

// CodeGenerator draws a candidate tracking code
type CodeGenerator func() (string, error)

// GenerateTrackingCode draws TrackingCodeLength characters uniformly from [A-Z0-9]
func GenerateTrackingCode() (string, error) {
	buf := make([]byte, config.TrackingCodeLength)
	max := big.NewInt(int64(len(trackingCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", contextutils.WrapError(err, "failed to draw tracking code")
		}
		buf[i] = trackingCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// IsTrackingCode reports whether s has the shape of a tracking code
func IsTrackingCode(s string) bool {
	if len(s) != config.TrackingCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// nextTrackingCode draws until it finds a code no stored item uses. There is
// no retry cap; the insert still guards against a concurrent writer taking
// the same code.
func nextTrackingCode(ctx context.Context, q rowQuerier, gen CodeGenerator) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := gen()
		if err != nil {
			return "", err
		}
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM feedback WHERE feedback_no = $1)`, code).Scan(&exists); err != nil {
			return "", contextutils.WrapError(err, "failed to check tracking code")
		}
		if !exists {
			return code, nil
		}
	}
}
