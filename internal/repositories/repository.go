package repositories

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mutation 标记一次写操作的发起方
// 用户操作会刷新 updated_by_id / updated_at；系统维护 (聚合大小、配额、级联改属主) 不会
type Mutation struct {
	ActorID uint64
	System  bool
}

func ByActor(actorID uint64) Mutation { return Mutation{ActorID: actorID} }

var SystemMutation = Mutation{System: true}

// UpdatedBy 返回写入后 updated_by_id 的值
func (m Mutation) UpdatedBy(current uint64) uint64 {
	if m.System {
		return current
	}
	return m.ActorID
}

func (m Mutation) columns(values map[string]any) map[string]any {
	if !m.System {
		values["updated_by_id"] = m.ActorID
		values["updated_at"] = time.Now()
	}
	return values
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, xerr.ErrDatabaseError, err)
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// sortedUnique 按固定顺序加锁，避免并发事务互相等待
func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
