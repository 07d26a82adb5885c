package drive

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
	"go.uber.org/zap"
)

// QuotaLedger 维护 users.used_drive_bytes，必须在调用方的事务里使用
type QuotaLedger struct {
	users repositories.UserRepository
}

func NewQuotaLedger(users repositories.UserRepository) *QuotaLedger {
	return &QuotaLedger{users: users}
}

// Charge 锁定用户行后检查剩余空间，超出时不做任何修改
func (q *QuotaLedger) Charge(ctx context.Context, userID uint64, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative charge %d", xerr.ErrInvalidParams, delta)
	}
	locked, err := q.users.LockByIDs(ctx, userID)
	if err != nil {
		return err
	}
	user := locked[userID]
	if user.UsedDriveBytes+delta > user.AllocatedDriveBytes {
		logger.Warn("Charge: quota exceeded",
			zap.Uint64("userID", userID),
			zap.Int64("bytes", delta),
			zap.String("free", utils.FormatSize(user.FreeDriveBytes())))
		return fmt.Errorf("%w: user %d needs %d bytes, %d free", xerr.ErrQuotaExceeded, userID, delta, user.FreeDriveBytes())
	}
	return q.users.AddUsedBytes(ctx, userID, delta)
}

// Release 归还空间；账本不会被减到负数
func (q *QuotaLedger) Release(ctx context.Context, userID uint64, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative release %d", xerr.ErrInvalidParams, delta)
	}
	locked, err := q.users.LockByIDs(ctx, userID)
	if err != nil {
		return err
	}
	user := locked[userID]
	if delta > user.UsedDriveBytes {
		logger.Error("Release: ledger below actual usage, clamping at zero",
			zap.Uint64("userID", userID),
			zap.Int64("bytes", delta),
			zap.Int64("used", user.UsedDriveBytes))
		delta = user.UsedDriveBytes
	}
	return q.users.AddUsedBytes(ctx, userID, -delta)
}
