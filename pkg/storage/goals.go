package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// CreateGoal inserts a goal, generating a UUID when absent. Name must be
// unique among live rows.
func (s *Storage) CreateGoal(goal *types.Goal) error {
	prepareCreate(&goal.Base)
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "goals", "Goal", goal.UUID); err != nil {
			return err
		}
		if err := ensureUniqueName(tx, "goals", "Goal", "name", goal.Name); err != nil {
			return err
		}
		if err := tx.Create(goal).Error; err != nil {
			return &DatabaseError{Op: "create Goal", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetGoal(id int64) (*types.Goal, error) {
	return getBy[types.Goal](s, "Goal", nil, refString(id), "id = ?", id)
}

func (s *Storage) GetGoalByUUID(uuid string) (*types.Goal, error) {
	return getBy[types.Goal](s, "Goal", nil, uuid, "uuid = ?", uuid)
}

func (s *Storage) GetGoalByName(name string) (*types.Goal, error) {
	return getBy[types.Goal](s, "Goal", nil, name, "name = ?", name)
}

func (s *Storage) ListGoals(q *ListQuery) ([]*types.Goal, error) {
	return listRows[types.Goal](s, "Goal", "goals", nil, q)
}

// UpdateGoal persists the mutable goal fields. Attempting to change the
// UUID fails with Invalid.
func (s *Storage) UpdateGoal(goal *types.Goal) (*types.Goal, error) {
	return updateRow(s, "Goal", goal.ID, func(cur *types.Goal) error {
		if err := guardUUID(goal.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Name = goal.Name
		cur.DisplayName = goal.DisplayName
		cur.EfficacySpecification = goal.EfficacySpecification
		return nil
	})
}

func (s *Storage) SoftDeleteGoal(id int64) error {
	return softDeleteRow[types.Goal](s, "Goal", id)
}

// DestroyGoal hard-deletes a goal; refused while live strategies, audit
// templates or audits reference it.
func (s *Storage) DestroyGoal(id int64) error {
	return destroyRow[types.Goal](s, "Goal", id, []refCheck{
		{table: "strategies", fkColumn: "goal_id", by: "Strategy"},
		{table: "audit_templates", fkColumn: "goal_id", by: "AuditTemplate"},
		{table: "audits", fkColumn: "goal_id", by: "Audit"},
	})
}
