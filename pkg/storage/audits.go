package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var auditJoins = map[string]joinColumn{
	"goal_uuid": {
		join:   "JOIN goals ON goals.id = audits.goal_id",
		column: "goals.uuid",
	},
	"goal_name": {
		join:   "JOIN goals ON goals.id = audits.goal_id",
		column: "goals.name",
	},
	"strategy_uuid": {
		join:   "JOIN strategies ON strategies.id = audits.strategy_id",
		column: "strategies.uuid",
	},
	"strategy_name": {
		join:   "JOIN strategies ON strategies.id = audits.strategy_id",
		column: "strategies.name",
	},
}

func (s *Storage) CreateAudit(audit *types.Audit) error {
	prepareCreate(&audit.Base)
	if audit.State == "" {
		audit.State = types.AuditPending
	}
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "audits", "Audit", audit.UUID); err != nil {
			return err
		}
		if err := tx.Create(audit).Error; err != nil {
			return &DatabaseError{Op: "create Audit", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetAudit(id int64) (*types.Audit, error) {
	return getBy[types.Audit](s, "Audit", nil, refString(id), "id = ?", id)
}

func (s *Storage) GetAuditByUUID(uuid string) (*types.Audit, error) {
	return getBy[types.Audit](s, "Audit", nil, uuid, "uuid = ?", uuid)
}

// GetAuditEager loads the audit together with its goal and strategy in one
// query round-trip.
func (s *Storage) GetAuditEager(id int64) (*types.Audit, error) {
	return getBy[types.Audit](s, "Audit", []string{"Goal", "Strategy"}, refString(id), "id = ?", id)
}

func (s *Storage) ListAudits(q *ListQuery) ([]*types.Audit, error) {
	return listRows[types.Audit](s, "Audit", "audits", auditJoins, q)
}

func (s *Storage) UpdateAudit(audit *types.Audit) (*types.Audit, error) {
	return updateRow(s, "Audit", audit.ID, func(cur *types.Audit) error {
		if err := guardUUID(audit.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Name = audit.Name
		cur.State = audit.State
		cur.StateReason = audit.StateReason
		cur.Parameters = audit.Parameters
		cur.Interval = audit.Interval
		cur.Scope = audit.Scope
		cur.AutoTrigger = audit.AutoTrigger
		cur.NextRunTime = audit.NextRunTime
		cur.Hostname = audit.Hostname
		cur.StartTime = audit.StartTime
		cur.EndTime = audit.EndTime
		cur.Force = audit.Force
		return nil
	})
}

// SoftDeleteAudit tombstones the audit and records the DELETED state.
func (s *Storage) SoftDeleteAudit(id int64) error {
	return s.withWrite(func(tx *gorm.DB) error {
		res := tx.Model(&types.Audit{}).Where("id = ?", id).
			Update("state", types.AuditDeleted)
		if res.Error != nil {
			return &DatabaseError{Op: "soft delete Audit", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "Audit", Ref: refString(id)}
		}
		if err := tx.Delete(&types.Audit{}, id).Error; err != nil {
			return &DatabaseError{Op: "soft delete Audit", Err: err}
		}
		return nil
	})
}

// DestroyAudit hard-deletes an audit; refused while any live action plan
// references it.
func (s *Storage) DestroyAudit(id int64) error {
	return destroyRow[types.Audit](s, "Audit", id, []refCheck{
		{table: "action_plans", fkColumn: "audit_id", by: "ActionPlan"},
	})
}
