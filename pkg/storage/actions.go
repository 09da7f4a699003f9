package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var actionJoins = map[string]joinColumn{
	"action_plan_uuid": {
		join:   "JOIN action_plans ON action_plans.id = actions.action_plan_id",
		column: "action_plans.uuid",
	},
	"audit_uuid": {
		join:   "JOIN action_plans ON action_plans.id = actions.action_plan_id JOIN audits ON audits.id = action_plans.audit_id",
		column: "audits.uuid",
	},
}

func (s *Storage) CreateAction(action *types.Action) error {
	prepareCreate(&action.Base)
	if action.State == "" {
		action.State = types.ActionPending
	}
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "actions", "Action", action.UUID); err != nil {
			return err
		}
		if err := tx.Create(action).Error; err != nil {
			return &DatabaseError{Op: "create Action", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetAction(id int64) (*types.Action, error) {
	return getBy[types.Action](s, "Action", nil, refString(id), "id = ?", id)
}

func (s *Storage) GetActionByUUID(uuid string) (*types.Action, error) {
	return getBy[types.Action](s, "Action", nil, uuid, "uuid = ?", uuid)
}

func (s *Storage) ListActions(q *ListQuery) ([]*types.Action, error) {
	return listRows[types.Action](s, "Action", "actions", actionJoins, q)
}

// ListActionsByPlan returns the plan's live actions in insertion order,
// which is the planner's canonical weight order.
func (s *Storage) ListActionsByPlan(planID int64) ([]*types.Action, error) {
	return listRows[types.Action](s, "Action", "actions", actionJoins, &ListQuery{
		Filters: map[string]any{"action_plan_id": planID},
	})
}

func (s *Storage) UpdateAction(action *types.Action) (*types.Action, error) {
	return updateRow(s, "Action", action.ID, func(cur *types.Action) error {
		if err := guardUUID(action.UUID, cur.UUID); err != nil {
			return err
		}
		cur.State = action.State
		cur.StateReason = action.StateReason
		cur.InputParameters = action.InputParameters
		return nil
	})
}

func (s *Storage) SoftDeleteAction(id int64) error {
	return s.withWrite(func(tx *gorm.DB) error {
		res := tx.Model(&types.Action{}).Where("id = ?", id).
			Update("state", types.ActionDeleted)
		if res.Error != nil {
			return &DatabaseError{Op: "soft delete Action", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "Action", Ref: refString(id)}
		}
		if err := tx.Delete(&types.Action{}, id).Error; err != nil {
			return &DatabaseError{Op: "soft delete Action", Err: err}
		}
		return nil
	})
}

func (s *Storage) DestroyAction(id int64) error {
	return destroyRow[types.Action](s, "Action", id, nil)
}
