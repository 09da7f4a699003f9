package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var actionPlanJoins = map[string]joinColumn{
	"audit_uuid": {
		join:   "JOIN audits ON audits.id = action_plans.audit_id",
		column: "audits.uuid",
	},
	"strategy_uuid": {
		join:   "JOIN strategies ON strategies.id = action_plans.strategy_id",
		column: "strategies.uuid",
	},
	"strategy_name": {
		join:   "JOIN strategies ON strategies.id = action_plans.strategy_id",
		column: "strategies.name",
	},
}

func (s *Storage) CreateActionPlan(plan *types.ActionPlan) error {
	prepareCreate(&plan.Base)
	if plan.State == "" {
		plan.State = types.PlanRecommended
	}
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "action_plans", "ActionPlan", plan.UUID); err != nil {
			return err
		}
		if err := tx.Create(plan).Error; err != nil {
			return &DatabaseError{Op: "create ActionPlan", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetActionPlan(id int64) (*types.ActionPlan, error) {
	return getBy[types.ActionPlan](s, "ActionPlan", nil, refString(id), "id = ?", id)
}

func (s *Storage) GetActionPlanByUUID(uuid string) (*types.ActionPlan, error) {
	return getBy[types.ActionPlan](s, "ActionPlan", nil, uuid, "uuid = ?", uuid)
}

func (s *Storage) ListActionPlans(q *ListQuery) ([]*types.ActionPlan, error) {
	return listRows[types.ActionPlan](s, "ActionPlan", "action_plans", actionPlanJoins, q)
}

// ListActionPlansByAudit is the reverse-navigation query from an audit to
// its plans; the entities hold no back-references.
func (s *Storage) ListActionPlansByAudit(auditID int64) ([]*types.ActionPlan, error) {
	return listRows[types.ActionPlan](s, "ActionPlan", "action_plans", actionPlanJoins, &ListQuery{
		Filters: map[string]any{"audit_id": auditID},
	})
}

func (s *Storage) UpdateActionPlan(plan *types.ActionPlan) (*types.ActionPlan, error) {
	return updateRow(s, "ActionPlan", plan.ID, func(cur *types.ActionPlan) error {
		if err := guardUUID(plan.UUID, cur.UUID); err != nil {
			return err
		}
		cur.State = plan.State
		cur.StateReason = plan.StateReason
		cur.GlobalEfficacy = plan.GlobalEfficacy
		cur.Hostname = plan.Hostname
		cur.StartTime = plan.StartTime
		cur.EndTime = plan.EndTime
		return nil
	})
}

func (s *Storage) SoftDeleteActionPlan(id int64) error {
	return s.withWrite(func(tx *gorm.DB) error {
		res := tx.Model(&types.ActionPlan{}).Where("id = ?", id).
			Update("state", types.PlanDeleted)
		if res.Error != nil {
			return &DatabaseError{Op: "soft delete ActionPlan", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "ActionPlan", Ref: refString(id)}
		}
		if err := tx.Delete(&types.ActionPlan{}, id).Error; err != nil {
			return &DatabaseError{Op: "soft delete ActionPlan", Err: err}
		}
		return nil
	})
}

// DestroyActionPlan hard-deletes a plan; refused while live actions or
// efficacy indicators reference it.
func (s *Storage) DestroyActionPlan(id int64) error {
	return destroyRow[types.ActionPlan](s, "ActionPlan", id, []refCheck{
		{table: "actions", fkColumn: "action_plan_id", by: "Action"},
		{table: "efficacy_indicators", fkColumn: "action_plan_id", by: "EfficacyIndicator"},
	})
}
