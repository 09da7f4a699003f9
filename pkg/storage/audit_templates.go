package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var auditTemplateJoins = map[string]joinColumn{
	"goal_uuid": {
		join:   "JOIN goals ON goals.id = audit_templates.goal_id",
		column: "goals.uuid",
	},
	"goal_name": {
		join:   "JOIN goals ON goals.id = audit_templates.goal_id",
		column: "goals.name",
	},
	"strategy_uuid": {
		join:   "JOIN strategies ON strategies.id = audit_templates.strategy_id",
		column: "strategies.uuid",
	},
	"strategy_name": {
		join:   "JOIN strategies ON strategies.id = audit_templates.strategy_id",
		column: "strategies.name",
	},
}

func (s *Storage) CreateAuditTemplate(template *types.AuditTemplate) error {
	prepareCreate(&template.Base)
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "audit_templates", "AuditTemplate", template.UUID); err != nil {
			return err
		}
		if err := ensureUniqueName(tx, "audit_templates", "AuditTemplate", "name", template.Name); err != nil {
			return err
		}
		if err := tx.Create(template).Error; err != nil {
			return &DatabaseError{Op: "create AuditTemplate", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetAuditTemplate(id int64) (*types.AuditTemplate, error) {
	return getBy[types.AuditTemplate](s, "AuditTemplate", []string{"Goal", "Strategy"}, refString(id), "id = ?", id)
}

func (s *Storage) GetAuditTemplateByUUID(uuid string) (*types.AuditTemplate, error) {
	return getBy[types.AuditTemplate](s, "AuditTemplate", []string{"Goal", "Strategy"}, uuid, "uuid = ?", uuid)
}

func (s *Storage) GetAuditTemplateByName(name string) (*types.AuditTemplate, error) {
	return getBy[types.AuditTemplate](s, "AuditTemplate", []string{"Goal", "Strategy"}, name, "name = ?", name)
}

func (s *Storage) ListAuditTemplates(q *ListQuery) ([]*types.AuditTemplate, error) {
	return listRows[types.AuditTemplate](s, "AuditTemplate", "audit_templates", auditTemplateJoins, q)
}

func (s *Storage) UpdateAuditTemplate(template *types.AuditTemplate) (*types.AuditTemplate, error) {
	return updateRow(s, "AuditTemplate", template.ID, func(cur *types.AuditTemplate) error {
		if err := guardUUID(template.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Name = template.Name
		cur.Description = template.Description
		cur.Scope = template.Scope
		if template.GoalID != 0 {
			cur.GoalID = template.GoalID
		}
		cur.StrategyID = template.StrategyID
		return nil
	})
}

func (s *Storage) SoftDeleteAuditTemplate(id int64) error {
	return softDeleteRow[types.AuditTemplate](s, "AuditTemplate", id)
}

// DestroyAuditTemplate hard-deletes a template. Templates reference goals
// and strategies without owning anything, so no referential guard applies.
func (s *Storage) DestroyAuditTemplate(id int64) error {
	return destroyRow[types.AuditTemplate](s, "AuditTemplate", id, nil)
}
